// Package addicted implements an HTML-scraping provider for an
// Addic7ed-style episode subtitle site. There is no JSON API; search and
// download both go through the site's HTML pages.
package addicted

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

const (
	Name           = "addicted"
	defaultBaseURL = "https://www.addic7ed.com"
)

// Site language names to ISO 639-1 codes for the languages we request.
var siteLanguages = map[string]string{
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"spanish":    "es",
	"portuguese": "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"russian":    "ru",
}

// Provider scrapes episode subtitles from the site's HTML.
type Provider struct {
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
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("provider", Name).Logger(),
	}, nil
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	langs := make([]string, 0, len(siteLanguages))
	for _, code := range siteLanguages {
		langs = append(langs, code)
	}
	return provider.Info{
		Name:      Name,
		Languages: langs,
		ConfigFields: []provider.ConfigField{
			{Key: "base_url", Label: "Base URL", Type: provider.FieldText, Default: defaultBaseURL},
		},
		// The site bans aggressive clients; stay well under its limit.
		RateLimit:  provider.RateLimit{MaxRequests: 10, Window: time.Minute},
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// Initialize implements provider.Provider.
func (p *Provider) Initialize(ctx context.Context) error {
	p.session = provider.NewSession(provider.SessionConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}, p.logger)
	return nil
}

// Terminate implements provider.Provider.
func (p *Provider) Terminate() {
	p.session = nil
}

// Search implements provider.Provider. The site only serves episodes;
// movie queries return nothing.
func (p *Provider) Search(ctx context.Context, query *provider.VideoQuery) ([]*provider.SubtitleResult, error) {
	if p.session == nil {
		return nil, fmt.Errorf("addicted: not initialized")
	}
	if !query.IsEpisode() {
		return nil, nil
	}

	searchTerm := fmt.Sprintf("%s %dx%02d", query.SeriesTitle, query.Season, query.Episode)
	pageURL := p.baseURL + "/search.php?search=" + url.QueryEscape(searchTerm) + "&Submit=Search"

	raw, _, err := p.session.Get(ctx, pageURL, map[string]string{"Referer": p.baseURL})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("addicted: failed to parse search page: %w", err)
	}

	var results []*provider.SubtitleResult
	doc.Find("table.tabel95 tr").Each(func(_ int, row *goquery.Selection) {
		langName := strings.ToLower(strings.TrimSpace(row.Find("td.language").Text()))
		code, ok := siteLanguages[langName]
		if !ok || !query.WantsLanguage(code) {
			return
		}

		link := row.Find("a.buttonDownload").First()
		href, exists := link.Attr("href")
		if !exists {
			return
		}

		version := strings.TrimSpace(row.Find("td.NewsTitle").Text())
		version = strings.TrimPrefix(version, "Version ")

		result := &provider.SubtitleResult{
			ProviderName: Name,
			SubtitleID:   href,
			Language:     code,
			Format:       provider.FormatSRT, // the site serves srt only
			Filename:     fmt.Sprintf("%s.%s.srt", searchTerm, code),
			DownloadURL:  p.baseURL + href,
			ReleaseInfo:  version,
		}

		if strings.Contains(row.Text(), "Hearing Impaired") {
			result.HearingImpaired = true
			result.AddMatch(provider.MatchHearingImpaired)
		}

		// The page only lists the requested episode, so series, season
		// and episode are confirmed by construction.
		result.AddMatch(provider.MatchSeries)
		result.AddMatch(provider.MatchSeason)
		result.AddMatch(provider.MatchEpisode)

		if query.ReleaseGroup != "" && strings.Contains(strings.ToLower(version), strings.ToLower(query.ReleaseGroup)) {
			result.AddMatch(provider.MatchReleaseGroup)
		}
		if query.Source != "" && strings.Contains(strings.ToLower(version), strings.ToLower(query.Source)) {
			result.AddMatch(provider.MatchSource)
		}

		results = append(results, result)
	})

	return results, nil
}

// Download implements provider.Provider. The site requires the search
// page as referer or it serves an error page instead of the subtitle.
func (p *Provider) Download(ctx context.Context, result *provider.SubtitleResult) ([]byte, error) {
	if p.session == nil {
		return nil, fmt.Errorf("addicted: not initialized")
	}

	downloadURL := result.DownloadURL
	if downloadURL == "" {
		downloadURL = p.baseURL + result.SubtitleID
	}

	raw, _, err := p.session.Get(ctx, downloadURL, map[string]string{"Referer": p.baseURL})
	if err != nil {
		return nil, err
	}
	if looksLikeHTML(raw) {
		return nil, fmt.Errorf("addicted: download returned an error page")
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
	if p.session == nil {
		return false, "not initialized"
	}
	_, status, err := p.session.Get(ctx, p.baseURL+"/", nil)
	if err != nil {
		return false, err.Error()
	}
	if status != 200 {
		return false, "unexpected status " + strconv.Itoa(status)
	}
	return true, "ok"
}

func looksLikeHTML(data []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(data))
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}
