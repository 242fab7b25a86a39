// Package jimaku implements an anime subtitle provider that addresses
// entries by AniList id and episodes by absolute number. It is the reason
// the search loop rewrites AbsoluteEpisode from the AniDB mapping table.
package jimaku

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

const (
	Name           = "jimaku"
	defaultBaseURL = "https://jimaku.cc/api"
)

// Provider talks to the site's JSON API.
type Provider struct {
	apiKey  string
	baseURL string
	session *provider.Session
	logger  zerolog.Logger
}

// New creates the provider from its settings map.
func New(settings map[string]string, logger zerolog.Logger) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		apiKey:  settings["api_key"],
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("provider", Name).Logger(),
	}, nil
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:      Name,
		Languages: []string{"ja", "en"},
		ConfigFields: []provider.ConfigField{
			{Key: "api_key", Label: "API Key", Type: provider.FieldPassword, Required: true},
			{Key: "base_url", Label: "Base URL", Type: provider.FieldText, Default: defaultBaseURL},
		},
		RateLimit:  provider.RateLimit{MaxRequests: 30, Window: time.Minute},
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// Initialize implements provider.Provider.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("jimaku: api key is required")
	}
	p.session = provider.NewSession(provider.SessionConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Headers:    map[string]string{"Authorization": p.apiKey},
	}, p.logger)
	return nil
}

// Terminate implements provider.Provider.
func (p *Provider) Terminate() {
	p.session = nil
}

type entry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AnilistID int    `json:"anilist_id"`
}

type file struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Search implements provider.Provider. Episodes are matched by absolute
// number; queries without one return nothing.
func (p *Provider) Search(ctx context.Context, query *provider.VideoQuery) ([]*provider.SubtitleResult, error) {
	if p.session == nil {
		return nil, fmt.Errorf("jimaku: not initialized")
	}
	if !query.IsEpisode() || query.AbsoluteEpisode <= 0 {
		return nil, nil
	}
	if !query.WantsLanguage("ja") && !query.WantsLanguage("en") {
		return nil, nil
	}

	ent, err := p.findEntry(ctx, query)
	if err != nil || ent == nil {
		return nil, err
	}

	filesURL := fmt.Sprintf("%s/entries/%d/files?episode=%d", p.baseURL, ent.ID, query.AbsoluteEpisode)
	raw, _, err := p.session.Get(ctx, filesURL, nil)
	if err != nil {
		return nil, err
	}

	var files []file
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("jimaku: failed to parse files response: %w", err)
	}

	var results []*provider.SubtitleResult
	for _, f := range files {
		format := provider.FormatFromExtension(filepath.Ext(f.Name))
		if format == provider.FormatUnknown {
			continue
		}

		// The site carries Japanese subtitles almost exclusively; an
		// explicit ".en." tag in the filename marks the exceptions.
		lang := "ja"
		if strings.Contains(strings.ToLower(f.Name), ".en.") {
			lang = "en"
		}
		if !query.WantsLanguage(lang) {
			continue
		}

		result := &provider.SubtitleResult{
			ProviderName: Name,
			SubtitleID:   fmt.Sprintf("%d/%s", ent.ID, f.Name),
			Language:     lang,
			Format:       format,
			Filename:     f.Name,
			DownloadURL:  f.URL,
			ReleaseInfo:  f.Name,
		}
		result.AddMatch(provider.MatchSeries)
		result.AddMatch(provider.MatchEpisode)
		if query.ReleaseGroup != "" && strings.Contains(strings.ToLower(f.Name), strings.ToLower(query.ReleaseGroup)) {
			result.AddMatch(provider.MatchReleaseGroup)
		}
		results = append(results, result)
	}
	return results, nil
}

// findEntry resolves the series to a site entry, preferring the AniList
// id over a name search.
func (p *Provider) findEntry(ctx context.Context, query *provider.VideoQuery) (*entry, error) {
	params := url.Values{}
	if query.AnilistID > 0 {
		params.Set("anilist_id", strconv.Itoa(query.AnilistID))
	} else {
		params.Set("query", query.SeriesTitle)
	}

	raw, _, err := p.session.Get(ctx, p.baseURL+"/entries/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("jimaku: failed to parse entries response: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Download implements provider.Provider.
func (p *Provider) Download(ctx context.Context, result *provider.SubtitleResult) ([]byte, error) {
	if p.session == nil {
		return nil, fmt.Errorf("jimaku: not initialized")
	}
	if result.DownloadURL == "" {
		return nil, fmt.Errorf("jimaku: result has no download url")
	}

	raw, _, err := p.session.Get(ctx, result.DownloadURL, nil)
	if err != nil {
		return nil, err
	}

	content, innerName, err := provider.Unpack(raw, result.Filename)
	if err != nil {
		return nil, err
	}
	if innerName != "" {
		result.Filename = innerName
		result.Format = provider.FormatFromExtension(filepath.Ext(innerName))
	}
	return content, nil
}

// HealthCheck implements provider.Provider.
func (p *Provider) HealthCheck(ctx context.Context) (bool, string) {
	if p.apiKey == "" {
		return false, "api key not configured"
	}
	return true, "ok"
}
