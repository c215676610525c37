package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"canticle/api/internal/auth"
	"canticle/api/internal/authpw"
	"canticle/api/internal/bible"
	"canticle/api/internal/blob"
	"canticle/api/internal/config"
	"canticle/api/internal/export"
	"canticle/api/internal/rag"
	"canticle/api/internal/rbac"
	"canticle/api/internal/search"
	"canticle/api/internal/store"
	"canticle/api/internal/usage"
	"canticle/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Username     string
	Role         rbac.Role
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service uses. Tests swap
// in a fake.
type dataStore interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	UpdateUserRole(ctx context.Context, id int64, role int) error
	DeleteUser(ctx context.Context, id int64) error

	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListNetworks(ctx context.Context) ([]store.Network, error)
	GetNetwork(ctx context.Context, id int64) (store.Network, error)
	ListChurchesByNetwork(ctx context.Context, networkID int64) ([]store.Church, error)
	GetChurch(ctx context.Context, id int64) (store.Church, error)
	GetActivity(ctx context.Context, id int64) (store.ChurchActivity, error)
	ListActivitiesByIDs(ctx context.Context, ids []int64) ([]store.ChurchActivity, error)

	GrantNetworkAccess(ctx context.Context, userID, networkID int64) error
	RevokeNetworkAccess(ctx context.Context, userID, networkID int64) error
	GrantChurchAccess(ctx context.Context, userID, churchID int64) error
	RevokeChurchAccess(ctx context.Context, userID, churchID int64) error
	GrantActivityAccess(ctx context.Context, userID, activityID int64) error
	RevokeActivityAccess(ctx context.Context, userID, activityID int64) error

	ListSongs(ctx context.Context, f store.SongFilter) ([]store.Song, error)
	GetSong(ctx context.Context, id int64) (store.SongDetails, error)
	SongExists(ctx context.Context, id int64) (bool, error)
	CreateSong(ctx context.Context, song store.Song) (store.Song, error)
	UpdateSong(ctx context.Context, song store.Song) error
	DeleteSong(ctx context.Context, id int64) error
	UpsertLyrics(ctx context.Context, songID int64, content string) error
	UpsertResources(ctx context.Context, res store.SongResources) error
	UpsertThemes(ctx context.Context, songID int64, content string, embedding []float64) error
	UpsertLyricEmbedding(ctx context.Context, songID int64, embedding []float64) error
	ListThemeEmbeddings(ctx context.Context) ([]store.ThemeEmbeddingRow, error)
	ListLyricEmbeddings(ctx context.Context) ([]store.ThemeEmbeddingRow, error)

	RecordUsage(ctx context.Context, songID, activityID int64, usedDate time.Time) (store.SongUsage, error)
	DeleteUsage(ctx context.Context, usageID int64) error
	ListSongUsages(ctx context.Context, songID int64, f store.UsageFilter) ([]store.SongUsage, error)
	KeyCounts(ctx context.Context, f store.UsageFilter, unique bool) (map[string]int, error)
	TypeCounts(ctx context.Context, f store.UsageFilter, unique bool) (hymns, songs int, err error)
	ActivityTotals(ctx context.Context, f store.UsageFilter) ([]store.ActivityTotalsRow, error)
}

// sessionStore holds refresh sessions, backed by Redis or Postgres.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type accessResolver interface {
	AllowedActivityIDs(ctx context.Context, userID int64) (map[int64]struct{}, error)
}

type summarizer interface {
	Summarize(ctx context.Context, req usage.SummaryRequest) ([]usage.SongSummary, error)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	db         *sql.DB
	sessions   sessionStore
	passwords  *authpw.Service
	resolver   accessResolver
	summarizer summarizer
	search     *search.Service
	embedder   *rag.Client
	bible      *bible.Client
	export     *export.Service
	blobs      *blob.Store
}

type ServiceDeps struct {
	Store      dataStore
	DB         *sql.DB
	Sessions   sessionStore
	Passwords  *authpw.Service
	Resolver   accessResolver
	Summarizer summarizer
	Search     *search.Service
	Embedder   *rag.Client
	Bible      *bible.Client
	Export     *export.Service
	Blobs      *blob.Store
}

func NewService(cfg config.Config, deps ServiceDeps) *Service {
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		db:         deps.DB,
		sessions:   deps.Sessions,
		passwords:  deps.Passwords,
		resolver:   deps.Resolver,
		summarizer: deps.Summarizer,
		search:     deps.Search,
		embedder:   deps.Embedder,
		bible:      deps.Bible,
		export:     deps.Export,
		blobs:      deps.Blobs,
	}
}

// Ping checks database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Register creates a new unapproved account.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	user, err := s.passwords.Register(ctx, username, password)
	if errors.Is(err, authpw.ErrUsernameTaken) {
		return store.User{}, domainError(http.StatusConflict, "CONFLICT", "Username already taken", nil)
	}
	if err != nil {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return user, nil
}

// Login authenticates and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.passwords.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token and issues a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the caller's access token JTI and refresh token. Unknown
// tokens are ignored.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := util.NewToken()
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         rbac.Role(user.Role),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates a bearer token and reconstructs the session.
// Tokens whose JTI was revoked at logout are rejected.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		Username:  claims.Username,
		Role:      rbac.Role(claims.Role),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// AllowedActivityIDs resolves the caller's visible activities.
func (s *Service) AllowedActivityIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	return s.resolver.AllowedActivityIDs(ctx, userID)
}

func mapStoreError(err error, notFoundMessage string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", notFoundMessage, nil)
	}
	if errors.Is(err, store.ErrConflict) {
		return domainError(http.StatusConflict, "CONFLICT", "Already exists", nil)
	}
	return err
}
