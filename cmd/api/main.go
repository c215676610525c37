package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"canticle/api/internal/access"
	"canticle/api/internal/app"
	"canticle/api/internal/authpw"
	"canticle/api/internal/bible"
	"canticle/api/internal/blob"
	"canticle/api/internal/config"
	"canticle/api/internal/export"
	"canticle/api/internal/rag"
	"canticle/api/internal/search"
	"canticle/api/internal/session"
	"canticle/api/internal/store"
	"canticle/api/internal/usage"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	var deps app.ServiceDeps
	deps.Store = dataStore
	deps.DB = db
	deps.Passwords = authpw.NewService(dataStore)
	deps.Resolver = access.NewResolver(dataStore)
	deps.Summarizer = usage.NewSummarizer(dataStore)
	deps.Search = searchService
	deps.Embedder = rag.NewClient(cfg.EmbedURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDimensions)
	deps.Bible = bible.NewClient(cfg.BibleAPIURL, cfg.BibleAPIToken)
	deps.Export = export.NewService()

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		deps.Sessions = dataStore
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		blobStore, err := blob.NewStore(ctx, blob.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		deps.Blobs = blobStore
	}

	service := app.NewService(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Canticle API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
