// Package scoring computes subtitle result scores from the per-category
// match-kind weight table, merged from hard-coded defaults and DB
// overrides, with a per-provider additive modifier applied last.
package scoring

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

// Category selects the weight column.
type Category string

const (
	CategoryEpisode Category = "episode"
	CategoryMovie   Category = "movie"
)

// FormatBonus is added for ASS/SSA results in both categories.
const FormatBonus = 50

// cacheTTL bounds how stale merged weights may get between config events.
const cacheTTL = 60 * time.Second

// defaultWeights is the authoritative starting point; DB overrides are
// merged on top.
var defaultWeights = map[Category]map[string]int{
	CategoryEpisode: {
		provider.MatchHash:            359,
		provider.MatchSeries:          180,
		provider.MatchYear:            90,
		provider.MatchSeason:          30,
		provider.MatchEpisode:         30,
		provider.MatchReleaseGroup:    14,
		provider.MatchSource:          7,
		provider.MatchAudioCodec:      3,
		provider.MatchResolution:      2,
		provider.MatchHearingImpaired: 1,
	},
	CategoryMovie: {
		provider.MatchHash:            119,
		provider.MatchTitle:           60,
		provider.MatchYear:            30,
		provider.MatchReleaseGroup:    13,
		provider.MatchSource:          7,
		provider.MatchAudioCodec:      3,
		provider.MatchResolution:      2,
		provider.MatchHearingImpaired: 1,
	},
}

// Service merges and caches scoring weights and provider modifiers.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger

	mu          sync.Mutex
	weights     map[Category]map[string]int
	modifiers   map[string]int
	refreshedAt time.Time
}

// NewService creates a scoring service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "scoring").Logger(),
	}
}

// Invalidate discards the cached weights; the next Score call reloads.
// Wired to the config_updated event.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshedAt = time.Time{}
}

/// Score computes the final score for one result: sum of category weights
// over its match kinds, plus the ASS/SSA format bonus, plus the provider
// modifier, plus the uploader-trust bonus the provider pre-filled.
func (s *Service) Score(ctx context.Context, result *provider.SubtitleResult, category Category) int {
	weights, modifiers := s.tables(ctx)

	score := 0
	for kind := range result.Matches {
		score += weights[category][kind]
	}
	if result.Format == provider.FormatASS || result.Format == provider.FormatSSA {
		score += FormatBonus
	}
	score += modifiers[result.ProviderName]
	score += result.UploaderBonus
	return score
}

// Weights returns the merged weight table for a category.
func (s *Service) Weights(ctx context.Context, category Category) map[string]int {
	weights, _ := s.tables(ctx)

	out := make(map[string]int, len(weights[category]))
	for k, v := range weights[category] {
		out[k] = v
	}
	return out
}

// tables returns the cached merged tables, reloading under the lock when
// stale. Double-checked refresh keeps readers cheap.
func (s *Service) tables(ctx context.Context) (map[Category]map[string]int, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.refreshedAt) < cacheTTL && s.weights != nil {
		return s.weights, s.modifiers
	}

	merged := make(map[Category]map[string]int, len(defaultWeights))
	for cat, table := range defaultWeights {
		copied := make(map[string]int, len(table))
		for k, v := range table {
			copied[k] = v
		}
		merged[cat] = copied
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, match_kind, weight FROM scoring_overrides`)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load scoring overrides; using defaults")
	} else {
		defer rows.Close()
		for rows.Next() {
			var cat, kind string
			var weight int
			if err := rows.Scan(&cat, &kind, &weight); err != nil {
				continue
			}
			table, ok := merged[Category(cat)]
			if !ok {
				continue
			}
			if _, known := defaultWeights[Category(cat)][kind]; !known {
				s.logger.Debug().Str("matchKind", kind).Msg("Ignoring override for unknown match kind")
				continue
			}
			table[kind] = weight
		}
	}

	modifiers := make(map[string]int)
	modRows, err := s.db.QueryContext(ctx, `SELECT provider_name, modifier FROM provider_modifiers`)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load provider modifiers")
	} else {
		defer modRows.Close()
		for modRows.Next() {
			var name string
			var mod int
			if err := modRows.Scan(&name, &mod); err != nil {
				continue
			}
			modifiers[name] = mod
		}
	}

	s.weights = merged
	s.modifiers = modifiers
	s.refreshedAt = time.Now()
	return s.weights, s.modifiers
}
