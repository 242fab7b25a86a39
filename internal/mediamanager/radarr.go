package mediamanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

// RadarrClient reads the movie catalog.
type RadarrClient struct {
	baseURL string
	apiKey  string
	session *provider.Session
}

// NewRadarrClient creates a Radarr API client.
func NewRadarrClient(baseURL, apiKey string, logger zerolog.Logger) *RadarrClient {
	session := provider.NewSession(provider.SessionConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Headers:    map[string]string{"X-Api-Key": apiKey},
	}, logger.With().Str("component", "radarr-client").Logger())

	return &RadarrClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		session: session,
	}
}

// Movies lists every movie.
func (c *RadarrClient) Movies(ctx context.Context) ([]Movie, error) {
	body, _, err := c.session.Get(ctx, c.baseURL+"/api/v3/movie", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	var movies []Movie
	if err := json.Unmarshal(body, &movies); err != nil {
		return nil, fmt.Errorf("failed to decode movies: %w", err)
	}
	return movies, nil
}

// MovieByID fetches one movie.
func (c *RadarrClient) MovieByID(ctx context.Context, id int64) (*Movie, error) {
	body, _, err := c.session.Get(ctx, fmt.Sprintf("%s/api/v3/movie/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movie %d: %w", id, err)
	}
	var movie Movie
	if err := json.Unmarshal(body, &movie); err != nil {
		return nil, fmt.Errorf("failed to decode movie: %w", err)
	}
	return &movie, nil
}

// RescanMovie asks Radarr to rescan a movie folder after a subtitle was
// written.
func (c *RadarrClient) RescanMovie(ctx context.Context, movieID int64) error {
	payload, err := json.Marshal(map[string]any{
		"name":     "RescanMovie",
		"movieIds": []int64{movieID},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/command", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, _, err := c.session.Do(ctx, req); err != nil {
		return fmt.Errorf("failed to rescan movie %d: %w", movieID, err)
	}
	return nil
}

// HealthCheck probes the system status endpoint.
func (c *RadarrClient) HealthCheck(ctx context.Context) error {
	_, _, err := c.session.Get(ctx, c.baseURL+"/api/v3/system/status", nil)
	return err
}
