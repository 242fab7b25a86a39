// Package opensubtitles implements the OpenSubtitles REST provider. It is
// the one provider that pre-fills the uploader-trust bonus on results.
package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

const (
	Name           = "opensubtitles"
	defaultBaseURL = "https://api.opensubtitles.com/api/v1"
)

var languages = []string{
	"ar", "bg", "cs", "da", "de", "el", "en", "es", "fa", "fi", "fr", "he",
	"hi", "hr", "hu", "id", "it", "ja", "ko", "nl", "no", "pl", "pt", "ro",
	"ru", "sv", "th", "tr", "uk", "vi", "zh",
}

// Provider talks to the OpenSubtitles v1 REST API.
type Provider struct {
	apiKey   string
	username string
	password string
	baseURL  string
	session  *provider.Session
	logger   zerolog.Logger
	token    string
}

// New creates the provider from its settings map.
func New(settings map[string]string, logger zerolog.Logger) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		apiKey:   settings["api_key"],
		username: settings["username"],
		password: settings["password"],
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.With().Str("provider", Name).Logger(),
	}, nil
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:      Name,
		Languages: languages,
		ConfigFields: []provider.ConfigField{
			{Key: "api_key", Label: "API Key", Type: provider.FieldPassword, Required: true},
			{Key: "username", Label: "Username", Type: provider.FieldText},
			{Key: "password", Label: "Password", Type: provider.FieldPassword},
			{Key: "base_url", Label: "Base URL", Type: provider.FieldText, Default: defaultBaseURL},
		},
		RateLimit:  provider.RateLimit{MaxRequests: 40, Window: 10 * time.Second},
		Timeout:    45 * time.Second,
		MaxRetries: 3,
	}
}

// Initialize creates the HTTP session and logs in when credentials are
// configured. Anonymous use is allowed with a reduced download quota.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("opensubtitles: api key is required")
	}
	p.session = provider.NewSession(provider.SessionConfig{
		Timeout:    45 * time.Second,
		MaxRetries: 3,
		Headers: map[string]string{
			"Api-Key":      p.apiKey,
			"Content-Type": "application/json",
		},
	}, p.logger)

	if p.username == "" || p.password == "" {
		return nil
	}

	body, _ := json.Marshal(map[string]string{
		"username": p.username,
		"password": p.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	raw, _, err := p.session.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("opensubtitles: login failed: %w", err)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("opensubtitles: failed to parse login response: %w", err)
	}
	p.token = resp.Token
	return nil
}

// Terminate releases the session.
func (p *Provider) Terminate() {
	p.session = nil
	p.token = ""
}

type searchResponse struct {
	Data []struct {
		Attributes struct {
			SubtitleID      string  `json:"subtitle_id"`
			Language        string  `json:"language"`
			Release         string  `json:"release"`
			HearingImpaired bool    `json:"hearing_impaired"`
			ForeignPartsOnly bool   `json:"foreign_parts_only"`
			FPS             float64 `json:"fps"`
			MovieHashMatch  bool    `json:"moviehash_match"`
			FromTrusted     bool    `json:"from_trusted"`
			MachineTranslated bool  `json:"machine_translated"`
			AITranslated    bool    `json:"ai_translated"`
			Ratings         float64 `json:"ratings"`
			FeatureDetails  struct {
				Title         string `json:"title"`
				ParentTitle   string `json:"parent_title"`
				Year          int    `json:"year"`
				SeasonNumber  int    `json:"season_number"`
				EpisodeNumber int    `json:"episode_number"`
			} `json:"feature_details"`
			Files []struct {
				FileID   int64  `json:"file_id"`
				FileName string `json:"file_name"`
			} `json:"files"`
		} `json:"attributes"`
	} `json:"data"`
}

// Search implements provider.Provider. Results are unsorted and tagged
// with the match kinds the API response confirms.
func (p *Provider) Search(ctx context.Context, query *provider.VideoQuery) ([]*provider.SubtitleResult, error) {
	if p.session == nil {
		return nil, fmt.Errorf("opensubtitles: not initialized")
	}

	params := url.Values{}
	params.Set("languages", strings.Join(query.Languages, ","))
	if query.FileHash != "" {
		params.Set("moviehash", query.FileHash)
	}
	if query.ForcedOnly {
		params.Set("foreign_parts_only", "only")
	}
	if query.IsEpisode() {
		params.Set("query", query.SeriesTitle)
		params.Set("season_number", strconv.Itoa(query.Season))
		params.Set("episode_number", strconv.Itoa(query.Episode))
		if query.TvdbID > 0 {
			params.Set("parent_tvdb_id", strconv.Itoa(query.TvdbID))
		}
	} else {
		params.Set("query", query.Title)
		if query.Year > 0 {
			params.Set("year", strconv.Itoa(query.Year))
		}
		if query.ImdbID != "" {
			params.Set("imdb_id", strings.TrimPrefix(query.ImdbID, "tt"))
		}
	}

	raw, _, err := p.session.Get(ctx, p.baseURL+"/subtitles?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("opensubtitles: failed to parse search response: %w", err)
	}

	results := make([]*provider.SubtitleResult, 0, len(resp.Data))
	for _, item := range resp.Data {
		attrs := item.Attributes
		if len(attrs.Files) == 0 {
			continue
		}
		if !query.WantsLanguage(attrs.Language) {
			continue
		}

		file := attrs.Files[0]
		result := &provider.SubtitleResult{
			ProviderName:      Name,
			SubtitleID:        attrs.SubtitleID,
			Language:          attrs.Language,
			Format:            provider.FormatFromExtension(filepath.Ext(file.FileName)),
			Filename:          file.FileName,
			ReleaseInfo:       attrs.Release,
			HearingImpaired:   attrs.HearingImpaired,
			Forced:            attrs.ForeignPartsOnly,
			FPS:               attrs.FPS,
			MachineTranslated: attrs.MachineTranslated || attrs.AITranslated,
			UploaderBonus:     trustBonus(attrs.FromTrusted, attrs.Ratings),
			ProviderData:      map[string]string{"file_id": strconv.FormatInt(file.FileID, 10)},
		}
		if result.Format == provider.FormatUnknown {
			result.Format = provider.FormatSRT
		}

		p.tagMatches(result, query, attrs.MovieHashMatch,
			attrs.FeatureDetails.Title, attrs.FeatureDetails.ParentTitle,
			attrs.FeatureDetails.Year, attrs.FeatureDetails.SeasonNumber, attrs.FeatureDetails.EpisodeNumber)

		results = append(results, result)
	}
	return results, nil
}

// trustBonus maps uploader trust to the 0-20 bonus range.
func trustBonus(trusted bool, ratings float64) int {
	if trusted {
		return 20
	}
	bonus := int(ratings * 2)
	if bonus < 0 {
		bonus = 0
	}
	if bonus > 20 {
		bonus = 20
	}
	return bonus
}

func (p *Provider) tagMatches(result *provider.SubtitleResult, query *provider.VideoQuery, hashMatch bool, title, parentTitle string, year, season, episode int) {
	if hashMatch {
		result.AddMatch(provider.MatchHash)
	}
	if result.HearingImpaired {
		result.AddMatch(provider.MatchHearingImpaired)
	}

	if query.IsEpisode() {
		if titlesEqual(parentTitle, query.SeriesTitle) || titlesEqual(title, query.SeriesTitle) {
			result.AddMatch(provider.MatchSeries)
		}
		if season == query.Season && season > 0 {
			result.AddMatch(provider.MatchSeason)
		}
		if episode == query.Episode && episode > 0 {
			result.AddMatch(provider.MatchEpisode)
		}
	} else {
		if titlesEqual(title, query.Title) {
			result.AddMatch(provider.MatchTitle)
		}
	}
	if year == query.Year && year > 0 {
		result.AddMatch(provider.MatchYear)
	}

	release := strings.ToLower(result.ReleaseInfo)
	if query.ReleaseGroup != "" && strings.Contains(release, strings.ToLower(query.ReleaseGroup)) {
		result.AddMatch(provider.MatchReleaseGroup)
	}
	if query.Source != "" && strings.Contains(release, strings.ToLower(query.Source)) {
		result.AddMatch(provider.MatchSource)
	}
	if query.Resolution != "" && strings.Contains(release, strings.ToLower(query.Resolution)) {
		result.AddMatch(provider.MatchResolution)
	}
	if query.Codec != "" && strings.Contains(release, strings.ToLower(query.Codec)) {
		result.AddMatch(provider.MatchAudioCodec)
	}
}

func titlesEqual(a, b string) bool {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return a != "" && normalize(a) == normalize(b)
}

// Download implements provider.Provider. The API returns a short-lived
// link; the payload may be a bare subtitle or a zip container.
func (p *Provider) Download(ctx context.Context, result *provider.SubtitleResult) ([]byte, error) {
	if p.session == nil {
		return nil, fmt.Errorf("opensubtitles: not initialized")
	}

	fileID := result.ProviderData["file_id"]
	if fileID == "" {
		return nil, fmt.Errorf("opensubtitles: result has no file id")
	}

	body, _ := json.Marshal(map[string]any{"file_id": mustInt(fileID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/download", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	raw, _, err := p.session.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: download request failed: %w", err)
	}

	var resp struct {
		Link     string `json:"link"`
		FileName string `json:"file_name"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("opensubtitles: failed to parse download response: %w", err)
	}
	if resp.Link == "" {
		return nil, fmt.Errorf("opensubtitles: download quota exhausted or missing link")
	}

	payload, _, err := p.session.Get(ctx, resp.Link, nil)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: failed to fetch subtitle: %w", err)
	}

	content, innerName, err := provider.Unpack(payload, resp.FileName)
	if err != nil {
		return nil, err
	}
	if innerName != "" {
		result.Filename = innerName
		result.Format = provider.FormatFromExtension(filepath.Ext(innerName))
	} else if resp.FileName != "" {
		result.Filename = resp.FileName
	}
	return content, nil
}

// HealthCheck implements provider.Provider.
func (p *Provider) HealthCheck(ctx context.Context) (bool, string) {
	if p.apiKey == "" {
		return false, "api key not configured"
	}
	if p.session == nil {
		return false, "not initialized"
	}
	_, status, err := p.session.Get(ctx, p.baseURL+"/infos/formats", nil)
	if err != nil {
		return false, err.Error()
	}
	if status != http.StatusOK {
		return false, fmt.Sprintf("unexpected status %d", status)
	}
	return true, "ok"
}

func mustInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
