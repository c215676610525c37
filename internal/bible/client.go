// Package bible proxies passage lookups to an external scripture API.
package bible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	ErrPassageNotFound = errors.New("passage not found")
	ErrUpstream        = errors.New("bible service unavailable")
)

var whitespace = regexp.MustCompile(`\s+`)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type passageResponse struct {
	Passages []string `json:"passages"`
}

// Passage fetches the text for a reference like "John 3:16-18". Verse
// numbers, headings and footnotes are suppressed and whitespace collapsed.
func (c *Client) Passage(ctx context.Context, ref string) (string, error) {
	if !c.Enabled() {
		return "", ErrUpstream
	}

	params := url.Values{}
	params.Set("q", ref)
	params.Set("indent-poetry", "false")
	params.Set("include-headings", "false")
	params.Set("include-footnotes", "false")
	params.Set("include-verse-numbers", "false")
	params.Set("include-short-copyright", "false")
	params.Set("include-passage-references", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build passage request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrPassageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var decoded passageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(decoded.Passages) == 0 || decoded.Passages[0] == "" {
		return "", ErrPassageNotFound
	}

	return strings.TrimSpace(whitespace.ReplaceAllString(decoded.Passages[0], " ")), nil
}
