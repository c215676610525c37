package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"canticle/api/internal/auth"
	"canticle/api/internal/rbac"
	"canticle/api/internal/search"
	"canticle/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleAuthRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleAuthLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"username":      session.Username,
			"user_id":       session.UserID,
			"role":          session.Role.String(),
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// Unapproved accounts can authenticate but see nothing.
	if !rbac.AtLeast(session.Role, rbac.RoleNormal) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Account pending approval", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		payload, err := s.service.SearchSongs(r.Context(), search.Query{Text: q, Limit: limit, Offset: offset})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/songs" {
		switch r.Method {
		case http.MethodGet:
			filter, err := songFilterFromQuery(r)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			songs, err := s.service.ListSongs(r.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list songs", nil)
				return
			}
			payload := make([]map[string]any, 0, len(songs))
			for _, song := range songs {
				payload = append(payload, songJSON(song))
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			song, err := songFromBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateSong(r.Context(), song)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, songJSON(created))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/songs/usages/keys" {
		params, err := usageParamsFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		counts, err := s.service.KeyCounts(r.Context(), session, params)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, counts)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/songs/usages/types" {
		params, err := usageParamsFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		hymns, songs, err := s.service.TypeCounts(r.Context(), session, params)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hymn": hymns, "song": songs})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/songs/usages/summary" {
		params, err := summaryParamsFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		summaries, err := s.service.UsageSummary(r.Context(), session, params)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/songs/usages/summary/report" {
		params, err := summaryParamsFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		result, err := s.service.UsageSummaryReport(r.Context(), session, params)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/songs/by-theme" {
		var body struct {
			Themes        string   `json:"themes"`
			SearchType    string   `json:"search_type"`
			TopK          *int     `json:"top_k"`
			MinMatchScore *float64 `json:"min_match_score"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		topK := 10
		if body.TopK != nil {
			topK = *body.TopK
		}
		matches, err := s.service.SongsByTheme(r.Context(), body.Themes, body.SearchType, topK, body.MinMatchScore)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, matches)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/activities" {
		activities, err := s.service.ListViewableActivities(r.Context(), session)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list activities", nil)
			return
		}
		payload := make([]map[string]any, 0, len(activities))
		for _, activity := range activities {
			payload = append(payload, activityJSON(activity))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/activities/songs/usages/summary" {
		params, err := usageParamsFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		rows, err := s.service.ActivityTotals(r.Context(), session, params)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			payload = append(payload, map[string]any{
				"church_activity_id":   row.ChurchActivityID,
				"church_activity_name": row.ChurchActivityName,
				"total_count":          row.TotalCount,
				"unique_count":         row.UniqueCount,
			})
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/networks" {
		networks, err := s.service.ListNetworks(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list networks", nil)
			return
		}
		payload := make([]map[string]any, 0, len(networks))
		for _, network := range networks {
			payload = append(payload, map[string]any{"id": network.ID, "name": network.Name})
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/bible" {
		text, err := s.service.BiblePassage(r.Context(), r.URL.Query().Get("ref"))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"text": text})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/bible/themes" {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		themes, err := s.service.BibleThemes(r.Context(), body.Text)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"themes": themes})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "admin" {
		s.handleAdmin(w, r, session, parts)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "users" {
		userID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleUserItem(w, r, session, userID)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "networks" && parts[3] == "churches" {
		networkID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		churches, err := s.service.ListChurches(r.Context(), networkID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(churches))
		for _, church := range churches {
			payload = append(payload, map[string]any{
				"id":         church.ID,
				"network_id": church.NetworkID,
				"name":       church.Name,
				"slug":       church.Slug,
			})
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "usages" {
		usageID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteUsage(r.Context(), usageID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "songs" {
		songID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleSongItem(w, r, session, songID, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSongItem(w http.ResponseWriter, r *http.Request, session Session, songID int64, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			details, err := s.service.GetSong(r.Context(), songID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, songDetailsJSON(details))
			return
		case http.MethodPut:
			if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			song, err := songFromBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			song.ID = songID
			updated, err := s.service.UpdateSong(r.Context(), song)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, songJSON(updated))
			return
		case http.MethodDelete:
			if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			if err := s.service.DeleteSong(r.Context(), songID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "usages" {
		switch r.Method {
		case http.MethodGet:
			params, err := usageParamsFromQuery(r)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			usages, err := s.service.ListSongUsages(r.Context(), session, songID, params)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			payload := make([]map[string]any, 0, len(usages))
			for _, row := range usages {
				payload = append(payload, usageJSON(row))
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				ChurchActivityID int64  `json:"church_activity_id"`
				UsedDate         string `json:"used_date"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			usedDate, err := time.Parse("2006-01-02", body.UsedDate)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "used_date must be YYYY-MM-DD", nil)
				return
			}
			row, err := s.service.RecordUsage(r.Context(), session, songID, body.ChurchActivityID, usedDate)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, usageJSON(row))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "lyrics" && r.Method == http.MethodPut {
		if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateLyrics(r.Context(), songID, body.Content); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "resources" && r.Method == http.MethodPut {
		if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			SheetMusic *string `json:"sheet_music"`
			HarmonyVid *string `json:"harmony_vid"`
			HarmonyPDF *string `json:"harmony_pdf"`
			HarmonyMS  *string `json:"harmony_ms"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		res := store.SongResources{
			SongID:     songID,
			SheetMusic: body.SheetMusic,
			HarmonyVid: body.HarmonyVid,
			HarmonyPDF: body.HarmonyPDF,
			HarmonyMS:  body.HarmonyMS,
		}
		if err := s.service.UpdateResources(r.Context(), res); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "themes" && r.Method == http.MethodPost {
		if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		themes, err := s.service.GenerateSongThemes(r.Context(), songID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"themes": themes.Content})
		return
	}

	if len(parts) == 5 && parts[3] == "resources" {
		kind := parts[4]
		switch r.Method {
		case http.MethodGet:
			url, err := s.service.ResourceURL(r.Context(), songID, kind)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"url": url})
			return
		case http.MethodPut:
			if !rbac.AtLeast(session.Role, rbac.RoleEditor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
				return
			}
			defer file.Close()
			contentType := header.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			key, err := s.service.UploadResource(r.Context(), songID, kind, header.Filename, contentType, header.Size, file)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"key": key})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUserItem(w http.ResponseWriter, r *http.Request, session Session, userID int64) {
	switch r.Method {
	case http.MethodGet:
		user, err := s.service.GetUser(r.Context(), session, userID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return
	case http.MethodDelete:
		if err := s.service.DeleteUser(r.Context(), session, userID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// handleAdmin routes /api/admin/users/{id}/... endpoints. Admin only.
func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !rbac.AtLeast(session.Role, rbac.RoleAdmin) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	if len(parts) == 5 && parts[2] == "users" && parts[4] == "role" && r.Method == http.MethodPut {
		userID, err := parseID(parts[3])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateUserRole(r.Context(), userID, body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return
	}

	if len(parts) == 7 && parts[2] == "users" && parts[4] == "access" {
		userID, err := parseID(parts[3])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		targetID, err := parseID(parts[6])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleAccessGrant(w, r, userID, parts[5], targetID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAccessGrant(w http.ResponseWriter, r *http.Request, userID int64, kind string, targetID int64) {
	type accessOp struct {
		grant  func(context.Context, int64, int64) error
		revoke func(context.Context, int64, int64) error
		noun   string
	}
	ops := map[string]accessOp{
		"networks":   {s.service.GrantNetworkAccess, s.service.RevokeNetworkAccess, "network"},
		"churches":   {s.service.GrantChurchAccess, s.service.RevokeChurchAccess, "church"},
		"activities": {s.service.GrantActivityAccess, s.service.RevokeActivityAccess, "church activity"},
	}
	op, ok := ops[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := op.grant(r.Context(), userID, targetID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": fmt.Sprintf("User now has access to this %s", op.noun),
			"user_id": userID,
			"id":      targetID,
		})
		return
	case http.MethodDelete:
		if err := op.revoke(r.Context(), userID, targetID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, userJSON(user))
}

func (s *HTTPServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		if timeout := s.service.cfg.QueryTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Query parsing helpers. Dates are YYYY-MM-DD; church_activity_id repeats.

func usageParamsFromQuery(r *http.Request) (UsageParams, error) {
	activityIDs, err := parseIDList(r, "church_activity_id")
	if err != nil {
		return UsageParams{}, err
	}
	fromDate, err := parseDateParam(r, "from_date")
	if err != nil {
		return UsageParams{}, err
	}
	toDate, err := parseDateParam(r, "to_date")
	if err != nil {
		return UsageParams{}, err
	}
	unique, err := parseBoolParam(r, "unique")
	if err != nil {
		return UsageParams{}, err
	}
	return UsageParams{
		ActivityIDs: activityIDs,
		FromDate:    fromDate,
		ToDate:      toDate,
		Unique:      unique,
	}, nil
}

func summaryParamsFromQuery(r *http.Request) (SummaryParams, error) {
	usageParams, err := usageParamsFromQuery(r)
	if err != nil {
		return SummaryParams{}, err
	}
	songFilter, err := songFilterFromQuery(r)
	if err != nil {
		return SummaryParams{}, err
	}
	firstInRange, err := parseBoolParam(r, "first_used_in_range")
	if err != nil {
		return SummaryParams{}, err
	}
	lastInRange, err := parseBoolParam(r, "last_used_in_range")
	if err != nil {
		return SummaryParams{}, err
	}
	usedInRange, err := parseBoolParam(r, "used_in_range")
	if err != nil {
		return SummaryParams{}, err
	}
	return SummaryParams{
		ActivityIDs:      usageParams.ActivityIDs,
		FromDate:         usageParams.FromDate,
		ToDate:           usageParams.ToDate,
		SongFilter:       songFilter,
		FirstUsedInRange: firstInRange,
		LastUsedInRange:  lastInRange,
		UsedInRange:      usedInRange,
	}, nil
}

func songFilterFromQuery(r *http.Request) (store.SongFilter, error) {
	filter := store.SongFilter{}
	if raw, ok := r.URL.Query()["song_key"]; ok && len(raw) > 0 {
		key := raw[0]
		filter.SongKey = &key
	}
	songType := r.URL.Query().Get("song_type")
	if songType != "" && songType != "song" && songType != "hymn" {
		return store.SongFilter{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "song_type must be 'song' or 'hymn'", nil)
	}
	filter.SongType = songType
	filter.Lyric = r.URL.Query().Get("lyric")
	return filter, nil
}

func parseIDList(r *http.Request, name string) ([]int64, error) {
	var ids []int64
	for _, raw := range r.URL.Query()[name] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be YYYY-MM-DD", nil)
	}
	return &parsed, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a boolean", nil)
	}
	return parsed, nil
}

// Response shaping.

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"access_token":  session.Token,
		"refresh_token": session.RefreshToken,
		"token_type":    "bearer",
		"user_id":       session.UserID,
		"username":      session.Username,
		"role":          session.Role.String(),
		"expires_at":    session.ExpiresAt.Unix(),
	}
}

func userJSON(user store.User) map[string]any {
	payload := map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"role":       rbac.Role(user.Role).String(),
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.NetworkID != nil {
		payload["network_id"] = *user.NetworkID
	} else {
		payload["network_id"] = nil
	}
	return payload
}

func songJSON(song store.Song) map[string]any {
	return map[string]any{
		"id":         song.ID,
		"first_line": song.FirstLine,
		"song_key":   song.SongKey,
		"is_hymn":    song.IsHymn,
		"copyright":  song.Copyright,
		"author":     song.Author,
		"duration":   song.Duration,
	}
}

func songDetailsJSON(details store.SongDetails) map[string]any {
	payload := songJSON(details.Song)
	if details.Lyrics != nil {
		payload["lyrics"] = map[string]any{
			"id":      details.Lyrics.ID,
			"song_id": details.Lyrics.SongID,
			"content": details.Lyrics.Content,
		}
	} else {
		payload["lyrics"] = nil
	}
	if details.Resources != nil {
		payload["resources"] = map[string]any{
			"id":          details.Resources.ID,
			"song_id":     details.Resources.SongID,
			"sheet_music": details.Resources.SheetMusic,
			"harmony_vid": details.Resources.HarmonyVid,
			"harmony_pdf": details.Resources.HarmonyPDF,
			"harmony_ms":  details.Resources.HarmonyMS,
		}
	} else {
		payload["resources"] = nil
	}
	return payload
}

func activityJSON(activity store.ChurchActivity) map[string]any {
	activityType := "service"
	if activity.Type == store.ActivityTypeOther {
		activityType = "other"
	}
	return map[string]any{
		"id":        activity.ID,
		"church_id": activity.ChurchID,
		"name":      activity.Name,
		"slug":      activity.Slug,
		"type":      activityType,
	}
}

func usageJSON(row store.SongUsage) map[string]any {
	return map[string]any{
		"id":                 row.ID,
		"song_id":            row.SongID,
		"used_date":          row.UsedDate.Format("2006-01-02"),
		"church_activity_id": row.ChurchActivityID,
	}
}

func songFromBody(r *http.Request) (store.Song, error) {
	var body struct {
		FirstLine string  `json:"first_line"`
		SongKey   *string `json:"song_key"`
		IsHymn    bool    `json:"is_hymn"`
		Copyright *string `json:"copyright"`
		Author    *string `json:"author"`
		Duration  int     `json:"duration"`
	}
	if err := decodeBody(r, &body); err != nil {
		return store.Song{}, err
	}
	return store.Song{
		FirstLine: body.FirstLine,
		SongKey:   body.SongKey,
		IsHymn:    body.IsHymn,
		Copyright: body.Copyright,
		Author:    body.Author,
		Duration:  body.Duration,
	}, nil
}
