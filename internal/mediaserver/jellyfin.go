package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// JellyfinClient refreshes Jellyfin (and Emby) libraries.
type JellyfinClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewJellyfinClient creates a Jellyfin refresh client for one server.
func NewJellyfinClient(baseURL, apiKey string, logger zerolog.Logger) *JellyfinClient {
	return &JellyfinClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "jellyfin-client").Logger(),
	}
}

func (c *JellyfinClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf(`MediaBrowser Token="%s"`, c.apiKey))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

type mediaUpdateRequest struct {
	Updates []mediaPathUpdate `json:"Updates"`
}

type mediaPathUpdate struct {
	Path       string `json:"Path"`
	UpdateType string `json:"UpdateType"`
}

// Refresh tells Jellyfin which path changed, or triggers a full library
// scan when path is empty.
func (c *JellyfinClient) Refresh(ctx context.Context, path string) error {
	if path == "" {
		resp, err := c.do(ctx, http.MethodPost, "/Library/Refresh", nil)
		if err != nil {
			return fmt.Errorf("failed to trigger library scan: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to trigger library scan: status %d", resp.StatusCode)
		}
		return nil
	}

	payload, err := json.Marshal(mediaUpdateRequest{
		Updates: []mediaPathUpdate{{Path: path, UpdateType: "Modified"}},
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/Library/Media/Updated", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to report media update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to report media update: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// HealthCheck implements Client.
func (c *JellyfinClient) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/System/Info/Public", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
