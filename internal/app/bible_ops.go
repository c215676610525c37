package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"canticle/api/internal/bible"
)

// BiblePassage fetches and normalizes a passage from the upstream Bible API.
func (s *Service) BiblePassage(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ref is required", nil)
	}
	if s.bible == nil || !s.bible.Enabled() {
		return "", domainError(http.StatusBadGateway, "UPSTREAM_ERROR", "Bible service unavailable", nil)
	}
	text, err := s.bible.Passage(ctx, ref)
	if errors.Is(err, bible.ErrPassageNotFound) {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Passage not found", nil)
	}
	if err != nil {
		return "", domainError(http.StatusBadGateway, "UPSTREAM_ERROR", "Bible API request failed", nil)
	}
	return text, nil
}

// BibleThemes derives worship themes from a passage text.
func (s *Service) BibleThemes(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if s.embedder == nil || !s.embedder.Enabled() {
		return nil, domainError(http.StatusBadGateway, "UPSTREAM_ERROR", "Theme generation failed", nil)
	}
	themes, err := s.embedder.GenerateThemes(ctx, text)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "UPSTREAM_ERROR", "Theme generation failed", nil)
	}
	return themes, nil
}
