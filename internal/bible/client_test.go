package bible

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPassageNormalizesWhitespace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "John 3:16" {
			t.Errorf("q = %q, want John 3:16", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"passages": []string{"  For God so loved\n   the world  "},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	text, err := client.Passage(context.Background(), "John 3:16")
	if err != nil {
		t.Fatalf("Passage() error = %v", err)
	}
	if text != "For God so loved the world" {
		t.Fatalf("Passage() = %q", text)
	}
}

func TestPassageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Passage(context.Background(), "Nope 1:1"); !errors.Is(err, ErrPassageNotFound) {
		t.Fatalf("Passage() error = %v, want ErrPassageNotFound", err)
	}
}

func TestPassageEmptyResultIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"passages": []string{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Passage(context.Background(), "John 99:99"); !errors.Is(err, ErrPassageNotFound) {
		t.Fatalf("Passage() error = %v, want ErrPassageNotFound", err)
	}
}

func TestPassageUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Passage(context.Background(), "John 3:16"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("Passage() error = %v, want ErrUpstream", err)
	}
}
