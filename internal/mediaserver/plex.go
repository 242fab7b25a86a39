package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const plexProduct = "Sublarr"

// PlexClient refreshes Plex library sections over the local server API.
type PlexClient struct {
	baseURL    string
	token      string
	clientID   string
	version    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPlexClient creates a Plex refresh client for one server.
func NewPlexClient(baseURL, token, version string, logger zerolog.Logger) *PlexClient {
	return &PlexClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		clientID:   uuid.New().String(),
		version:    version,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "plex-client").Logger(),
	}
}

func (c *PlexClient) setHeaders(req *http.Request) {
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", plexProduct)
	req.Header.Set("X-Plex-Version", c.version)
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
	req.Header.Set("X-Plex-Device-Name", plexProduct)
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")
}

type plexSectionsResponse struct {
	MediaContainer struct {
		Directory []struct {
			Key      string `json:"key"`
			Title    string `json:"title"`
			Location []struct {
				Path string `json:"path"`
			} `json:"Location"`
		} `json:"Directory"`
	} `json:"MediaContainer"`
}

// sections lists the server's library sections with their filesystem
// locations.
func (c *PlexClient) sections(ctx context.Context) (*plexSectionsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/library/sections", http.NoBody)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list sections: status %d, body: %s", resp.StatusCode, string(body))
	}

	var sections plexSectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sections); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}
	return &sections, nil
}

// Refresh rescans the section containing path, or every section when
// path is empty. Partial scans pass the directory so Plex only touches
// the changed folder.
func (c *PlexClient) Refresh(ctx context.Context, path string) error {
	sections, err := c.sections(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, dir := range sections.MediaContainer.Directory {
		match := path == ""
		for _, loc := range dir.Location {
			if path != "" && strings.HasPrefix(path, loc.Path) {
				match = true
				break
			}
		}
		if !match {
			continue
		}

		endpoint := fmt.Sprintf("%s/library/sections/%s/refresh", c.baseURL, dir.Key)
		if path != "" {
			endpoint += "?path=" + url.QueryEscape(path)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to refresh section %s: %w", dir.Title, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to refresh section %s: status %d", dir.Title, resp.StatusCode)
		}
		refreshed++
	}

	if refreshed == 0 && path != "" {
		c.logger.Debug().Str("path", path).Msg("No Plex section contains path; skipping refresh")
	}
	return nil
}

// HealthCheck implements Client.
func (c *PlexClient) HealthCheck(ctx context.Context) error {
	_, err := c.sections(ctx)
	return err
}
