package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"canticle/api/internal/rag"
	"canticle/api/internal/search"
	"canticle/api/internal/store"
	"canticle/api/internal/util"
)

// ListSongs returns the catalog, optionally filtered.
func (s *Service) ListSongs(ctx context.Context, f store.SongFilter) ([]store.Song, error) {
	return s.store.ListSongs(ctx, f)
}

// GetSong returns a song with its lyrics and resources.
func (s *Service) GetSong(ctx context.Context, id int64) (store.SongDetails, error) {
	details, err := s.store.GetSong(ctx, id)
	if err != nil {
		return store.SongDetails{}, mapStoreError(err, "Song not found")
	}
	return details, nil
}

// CreateSong adds a song to the catalog and indexes it for search.
func (s *Service) CreateSong(ctx context.Context, song store.Song) (store.Song, error) {
	if strings.TrimSpace(song.FirstLine) == "" {
		return store.Song{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "first_line is required", nil)
	}
	created, err := s.store.CreateSong(ctx, song)
	if err != nil {
		return store.Song{}, mapStoreError(err, "Song not found")
	}
	s.indexSong(ctx, created.ID)
	return created, nil
}

// UpdateSong replaces a song's catalog fields.
func (s *Service) UpdateSong(ctx context.Context, song store.Song) (store.Song, error) {
	if strings.TrimSpace(song.FirstLine) == "" {
		return store.Song{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "first_line is required", nil)
	}
	if err := s.store.UpdateSong(ctx, song); err != nil {
		return store.Song{}, mapStoreError(err, "Song not found")
	}
	s.indexSong(ctx, song.ID)
	details, err := s.store.GetSong(ctx, song.ID)
	if err != nil {
		return store.Song{}, mapStoreError(err, "Song not found")
	}
	return details.Song, nil
}

// DeleteSong removes a song. Usage rows and lyrics cascade in the database.
func (s *Service) DeleteSong(ctx context.Context, id int64) error {
	if err := s.store.DeleteSong(ctx, id); err != nil {
		return mapStoreError(err, "Song not found")
	}
	if s.search != nil {
		s.search.DeleteSong(id)
	}
	return nil
}

// UpdateLyrics replaces a song's lyrics and refreshes the search index.
func (s *Service) UpdateLyrics(ctx context.Context, songID int64, content string) error {
	if err := s.store.UpsertLyrics(ctx, songID, content); err != nil {
		return mapStoreError(err, "Song not found")
	}
	s.indexSong(ctx, songID)
	return nil
}

// UpdateResources replaces a song's resource links.
func (s *Service) UpdateResources(ctx context.Context, res store.SongResources) error {
	return mapStoreError(s.store.UpsertResources(ctx, res), "Song not found")
}

// GenerateSongThemes derives themes from a song's lyrics and stores embeddings
// of both the themes and the lyrics text. The song must already have lyrics.
func (s *Service) GenerateSongThemes(ctx context.Context, songID int64) (store.SongThemes, error) {
	details, err := s.store.GetSong(ctx, songID)
	if err != nil {
		return store.SongThemes{}, mapStoreError(err, "Song not found")
	}
	if details.Lyrics == nil || strings.TrimSpace(details.Lyrics.Content) == "" {
		return store.SongThemes{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Song has no lyrics", nil)
	}
	if s.embedder == nil || !s.embedder.Enabled() {
		return store.SongThemes{}, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Embedding service unavailable", nil)
	}

	themes, err := s.embedder.GenerateThemes(ctx, details.Lyrics.Content)
	if err != nil {
		return store.SongThemes{}, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Embedding service unavailable", nil)
	}
	content := strings.Join(themes, ", ")

	embeddings, err := s.embedder.Embed(ctx, []string{content, details.Lyrics.Content})
	if err != nil {
		return store.SongThemes{}, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Embedding service unavailable", nil)
	}
	if err := s.store.UpsertThemes(ctx, songID, content, embeddings[0]); err != nil {
		return store.SongThemes{}, mapStoreError(err, "Song not found")
	}
	if err := s.store.UpsertLyricEmbedding(ctx, songID, embeddings[1]); err != nil {
		return store.SongThemes{}, mapStoreError(err, "Song not found")
	}
	return store.SongThemes{Content: content}, nil
}

// SongsByTheme embeds the query text and ranks stored song embeddings against
// it. searchType selects which embeddings are ranked: "themes" (the default)
// or "lyrics".
func (s *Service) SongsByTheme(ctx context.Context, themes, searchType string, topK int, minScore *float64) ([]rag.Match, error) {
	if topK < 1 || topK > 30 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "top_k must be between 1 and 30", nil)
	}
	if strings.TrimSpace(themes) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "themes is required", nil)
	}
	if searchType != "" && searchType != "themes" && searchType != "lyrics" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "search_type must be themes or lyrics", nil)
	}
	if s.embedder == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Embedding service unavailable", nil)
	}

	embeddings, err := s.embedder.Embed(ctx, []string{themes})
	if err != nil {
		if errors.Is(err, rag.ErrUnavailable) {
			return nil, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Embedding service unavailable", nil)
		}
		return nil, err
	}

	var rows []store.ThemeEmbeddingRow
	if searchType == "lyrics" {
		rows, err = s.store.ListLyricEmbeddings(ctx)
	} else {
		rows, err = s.store.ListThemeEmbeddings(ctx)
	}
	if err != nil {
		return nil, err
	}
	return rag.RankMatches(embeddings[0], rows, topK, minScore), nil
}

// SearchSongs runs full-text search over the catalog.
func (s *Service) SearchSongs(ctx context.Context, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Search unavailable", nil)
	}
	return s.search.Search(q), nil
}

// resourceField selects the SongResources link for an upload kind.
func resourceField(res *store.SongResources, kind string) **string {
	switch kind {
	case "sheet_music":
		return &res.SheetMusic
	case "harmony_vid":
		return &res.HarmonyVid
	case "harmony_pdf":
		return &res.HarmonyPDF
	case "harmony_ms":
		return &res.HarmonyMS
	}
	return nil
}

// UploadResource stores a resource file for a song and records its object key
// on the song's resources. kind is one of sheet_music, harmony_vid,
// harmony_pdf or harmony_ms.
func (s *Service) UploadResource(ctx context.Context, songID int64, kind, filename, contentType string, size int64, body io.Reader) (string, error) {
	details, err := s.store.GetSong(ctx, songID)
	if err != nil {
		return "", mapStoreError(err, "Song not found")
	}

	res := store.SongResources{SongID: songID}
	if details.Resources != nil {
		res = *details.Resources
	}
	field := resourceField(&res, kind)
	if field == nil {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown resource kind", nil)
	}
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Object storage unavailable", nil)
	}

	key := fmt.Sprintf("%s/%d/%s-%s", strings.ReplaceAll(kind, "_", "-"), songID, util.NewID("res"), sanitizeObjectName(filename))
	if _, err := s.blobs.Put(ctx, key, contentType, size, body); err != nil {
		return "", fmt.Errorf("store resource: %w", err)
	}

	previous := *field
	*field = &key
	if err := s.store.UpsertResources(ctx, res); err != nil {
		return "", mapStoreError(err, "Song not found")
	}
	if previous != nil {
		// Best effort. The new key is already recorded.
		_ = s.blobs.Remove(ctx, *previous)
	}
	return key, nil
}

// ResourceURL returns a short-lived download link for a stored resource file.
func (s *Service) ResourceURL(ctx context.Context, songID int64, kind string) (string, error) {
	details, err := s.store.GetSong(ctx, songID)
	if err != nil {
		return "", mapStoreError(err, "Song not found")
	}

	res := store.SongResources{SongID: songID}
	if details.Resources != nil {
		res = *details.Resources
	}
	field := resourceField(&res, kind)
	if field == nil {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown resource kind", nil)
	}
	if *field == nil {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	}
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Object storage unavailable", nil)
	}
	url, err := s.blobs.PresignedGet(ctx, **field, time.Hour)
	if err != nil {
		return "", fmt.Errorf("presign resource: %w", err)
	}
	return url, nil
}

func (s *Service) indexSong(ctx context.Context, songID int64) {
	if s.search == nil {
		return
	}
	details, err := s.store.GetSong(ctx, songID)
	if err != nil {
		return
	}
	record := search.SongRecord{
		ID:        details.ID,
		FirstLine: details.FirstLine,
		IsHymn:    details.IsHymn,
	}
	if details.Author != nil {
		record.Author = *details.Author
	}
	if details.Lyrics != nil {
		record.Lyrics = details.Lyrics.Content
	}
	s.search.IndexSong(record)
}

func sanitizeObjectName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
