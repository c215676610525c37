// Package rag talks to the embedding and theme-generation service and scores
// stored song themes against query embeddings.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ErrUnavailable means the embedding service could not produce a usable
// result after all retries.
var ErrUnavailable = errors.New("embedding service unavailable")

const maxAttempts = 3

var baseDelay = time.Second

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string, dimensions int) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an embedding service is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding per input text. Transient failures are retried
// with exponential backoff; anything still failing after the final attempt
// surfaces as ErrUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		embeddings, err := c.embedOnce(ctx, texts)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		log.Printf("embed attempt %d/%d failed: %v", attempt, maxAttempts, err)

		if !isTransient(err) || attempt == maxAttempts {
			break
		}
		delay := baseDelay * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("embed request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &transientError{fmt.Errorf("embed request: status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &transientError{fmt.Errorf("read embed response: %w", err)}
	}

	var decoded embedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("embed response: got %d embeddings for %d inputs", len(decoded.Data), len(texts))
	}

	embeddings := make([][]float64, len(decoded.Data))
	for i, item := range decoded.Data {
		if len(item.Embedding) != c.dimensions {
			return nil, fmt.Errorf("embed response: embedding %d has %d dimensions, want %d", i, len(item.Embedding), c.dimensions)
		}
		embeddings[i] = item.Embedding
	}
	return embeddings, nil
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

type generateRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type generateResponse struct {
	Themes []string `json:"themes"`
}

// GenerateThemes asks the service for a short theme list describing the given
// text.
func (c *Client) GenerateThemes(ctx context.Context, text string) ([]string, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(generateRequest{Model: c.model, Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal themes request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/themes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build themes request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode themes response: %w", err)
	}
	return decoded.Themes, nil
}
