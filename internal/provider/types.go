// Package provider defines the subtitle provider contract: the search
// query and result types, the Provider interface, the provider registry,
// and the shared retry-aware HTTP session.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Format identifies a subtitle file format, ranked for tie-breaking.
type Format string

const (
	FormatASS     Format = "ass"
	FormatSSA     Format = "ssa"
	FormatSRT     Format = "srt"
	FormatVTT     Format = "vtt"
	FormatUnknown Format = "unknown"
)

// Rank orders formats for sorting: ASS > SSA > SRT > VTT > UNKNOWN.
func (f Format) Rank() int {
	switch f {
	case FormatASS:
		return 4
	case FormatSSA:
		return 3
	case FormatSRT:
		return 2
	case FormatVTT:
		return 1
	default:
		return 0
	}
}

// FormatFromExtension maps a file extension (with or without dot) to a
// Format.
func FormatFromExtension(ext string) Format {
	switch ext {
	case "ass", ".ass":
		return FormatASS
	case "ssa", ".ssa":
		return FormatSSA
	case "srt", ".srt":
		return FormatSRT
	case "vtt", ".vtt":
		return FormatVTT
	default:
		return FormatUnknown
	}
}

// Match kinds form the closed vocabulary the scoring function understands.
const (
	MatchHash            = "hash"
	MatchSeries          = "series"
	MatchTitle           = "title"
	MatchYear            = "year"
	MatchSeason          = "season"
	MatchEpisode         = "episode"
	MatchReleaseGroup    = "release_group"
	MatchSource          = "source"
	MatchAudioCodec      = "audio_codec"
	MatchResolution      = "resolution"
	MatchHearingImpaired = "hearing_impaired"
)

// VideoQuery is the unit of search intent for one media file. A query is
// either an episode (Season and Episode set) or a movie (Title set, no
// episode identity); never both.
type VideoQuery struct {
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
	FileHash string `json:"fileHash,omitempty"`

	Title string `json:"title,omitempty"`
	Year  int    `json:"year,omitempty"`

	SeriesTitle     string `json:"seriesTitle,omitempty"`
	Season          int    `json:"season,omitempty"`
	Episode         int    `json:"episode,omitempty"`
	AbsoluteEpisode int    `json:"absoluteEpisode,omitempty"`
	EpisodeTitle    string `json:"episodeTitle,omitempty"`

	ImdbID       string `json:"imdbId,omitempty"`
	TmdbID       int    `json:"tmdbId,omitempty"`
	TvdbID       int    `json:"tvdbId,omitempty"`
	AnidbID      int    `json:"anidbId,omitempty"`
	AnidbEpisode int    `json:"anidbEpisode,omitempty"`
	AnilistID    int    `json:"anilistId,omitempty"`

	ReleaseGroup string `json:"releaseGroup,omitempty"`
	Source       string `json:"source,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	Codec        string `json:"codec,omitempty"`

	Languages  []string `json:"languages"`
	ForcedOnly bool     `json:"forcedOnly,omitempty"`
}

// IsEpisode reports whether the query carries episode identity.
func (q *VideoQuery) IsEpisode() bool {
	return q.Season > 0 && q.Episode > 0
}

// Validate enforces the episode-xor-movie invariant.
func (q *VideoQuery) Validate() error {
	episode := q.Season > 0 && q.Episode > 0
	movie := q.Title != "" && q.Season == 0 && q.Episode == 0
	if episode == movie {
		return fmt.Errorf("query must be either an episode or a movie: %q", q.FilePath)
	}
	if len(q.Languages) == 0 {
		return fmt.Errorf("query has no requested languages: %q", q.FilePath)
	}
	return nil
}

// WantsLanguage reports whether lang is in the query's language set.
func (q *VideoQuery) WantsLanguage(lang string) bool {
	for _, l := range q.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// SubtitleResult is one hit from one provider, identified by
// (ProviderName, SubtitleID). Score is computed by the manager, never by
// the provider; Content is nil until Download succeeds.
type SubtitleResult struct {
	ProviderName string `json:"providerName"`
	SubtitleID   string `json:"subtitleId"`

	Language    string `json:"language"`
	Format      Format `json:"format"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Content     []byte `json:"-"`

	ReleaseInfo     string  `json:"releaseInfo,omitempty"`
	HearingImpaired bool    `json:"hearingImpaired,omitempty"`
	Forced          bool    `json:"forced,omitempty"`
	FPS             float64 `json:"fps,omitempty"`
	UploaderBonus   int     `json:"uploaderBonus,omitempty"` // 0-20, trusted-uploader providers only

	Matches map[string]bool `json:"matches"`
	Score   int             `json:"score"`

	MachineTranslated bool    `json:"machineTranslated,omitempty"`
	MTConfidence      float64 `json:"mtConfidence,omitempty"`

	ProviderData map[string]string `json:"providerData,omitempty"`
}

// AddMatch tags the result with one confirmed match kind.
func (r *SubtitleResult) AddMatch(kind string) {
	if r.Matches == nil {
		r.Matches = make(map[string]bool)
	}
	r.Matches[kind] = true
}

// ConfigFieldType enumerates provider setting field types.
type ConfigFieldType string

const (
	FieldText     ConfigFieldType = "text"
	FieldPassword ConfigFieldType = "password"
	FieldNumber   ConfigFieldType = "number"
)

// ConfigField describes one provider configuration setting.
type ConfigField struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	Type     ConfigFieldType `json:"type"`
	Required bool            `json:"required"`
	Default  string          `json:"default,omitempty"`
	Help     string          `json:"help,omitempty"`
}

// RateLimit declares a provider's outbound request budget. Zero values
// mean no limit.
type RateLimit struct {
	MaxRequests int           `json:"maxRequests"`
	Window      time.Duration `json:"window"`
}

// Info is the declarative metadata every provider exposes.
type Info struct {
	Name         string        `json:"name"` // unique, lower-case
	Languages    []string      `json:"languages"`
	ConfigFields []ConfigField `json:"configFields,omitempty"`
	RateLimit    RateLimit     `json:"rateLimit"`
	Timeout      time.Duration `json:"timeout"`
	MaxRetries   int           `json:"maxRetries"`
	IsPlugin     bool          `json:"isPlugin"`
}

// Provider is the contract every subtitle source implements. Search must
// not sort, must return only results in the query's language set, and must
// tag every result with the match kinds it can confirm. Download follows
// redirects, unpacks containers, and may rewrite Filename and Format.
type Provider interface {
	Info() Info
	Initialize(ctx context.Context) error
	Terminate()
	Search(ctx context.Context, query *VideoQuery) ([]*SubtitleResult, error)
	Download(ctx context.Context, result *SubtitleResult) ([]byte, error)
	HealthCheck(ctx context.Context) (bool, string)
}
