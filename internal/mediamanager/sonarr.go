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

// SonarrClient reads the series catalog.
type SonarrClient struct {
	baseURL string
	apiKey  string
	session *provider.Session
}

// NewSonarrClient creates a Sonarr API client.
func NewSonarrClient(baseURL, apiKey string, logger zerolog.Logger) *SonarrClient {
	session := provider.NewSession(provider.SessionConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Headers:    map[string]string{"X-Api-Key": apiKey},
	}, logger.With().Str("component", "sonarr-client").Logger())

	return &SonarrClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		session: session,
	}
}

// Series lists every show.
func (c *SonarrClient) Series(ctx context.Context) ([]Series, error) {
	body, _, err := c.session.Get(ctx, c.baseURL+"/api/v3/series", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	var series []Series
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("failed to decode series: %w", err)
	}
	return series, nil
}

// SeriesByID fetches one show.
func (c *SonarrClient) SeriesByID(ctx context.Context, id int64) (*Series, error) {
	body, _, err := c.session.Get(ctx, fmt.Sprintf("%s/api/v3/series/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch series %d: %w", id, err)
	}
	var series Series
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("failed to decode series: %w", err)
	}
	return &series, nil
}

// Episodes lists a show's episodes with their files.
func (c *SonarrClient) Episodes(ctx context.Context, seriesID int64) ([]Episode, error) {
	url := fmt.Sprintf("%s/api/v3/episode?seriesId=%d&includeEpisodeFile=true", c.baseURL, seriesID)
	body, _, err := c.session.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes for series %d: %w", seriesID, err)
	}
	var episodes []Episode
	if err := json.Unmarshal(body, &episodes); err != nil {
		return nil, fmt.Errorf("failed to decode episodes: %w", err)
	}
	return episodes, nil
}

// RescanSeries asks Sonarr to rescan the series folder after a subtitle
// was written.
func (c *SonarrClient) RescanSeries(ctx context.Context, seriesID int64) error {
	payload, err := json.Marshal(map[string]any{
		"name":     "RescanSeries",
		"seriesId": seriesID,
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
		return fmt.Errorf("failed to rescan series %d: %w", seriesID, err)
	}
	return nil
}

// HealthCheck probes the system status endpoint.
func (c *SonarrClient) HealthCheck(ctx context.Context) error {
	_, _, err := c.session.Get(ctx, c.baseURL+"/api/v3/system/status", nil)
	return err
}
