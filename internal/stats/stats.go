// Package stats aggregates daily pipeline counters and per-provider
// attempt counters. All writes are idempotent upserts so every pipeline
// termination can record unconditionally.
package stats

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// Service records and reads aggregated statistics.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a stats service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// DailyCounter names one daily_stats column.
type DailyCounter string

const (
	CounterDownloads    DailyCounter = "downloads"
	CounterTranslations DailyCounter = "translations"
	CounterUpgrades     DailyCounter = "upgrades"
	CounterSkips        DailyCounter = "skips"
	CounterFailures     DailyCounter = "failures"
)

// RecordDaily increments one counter for today (UTC). Failures are logged
// and swallowed; statistics never fail a pipeline.
func (s *Service) RecordDaily(ctx context.Context, counter DailyCounter) {
	date := time.Now().UTC().Format("2006-01-02")
	// Counter names come from the constants above, never from input.
	query := `
		INSERT INTO daily_stats (date, ` + string(counter) + `) VALUES (?, 1)
		ON CONFLICT (date) DO UPDATE SET ` + string(counter) + ` = ` + string(counter) + ` + 1`
	if _, err := s.db.ExecContext(ctx, query, date); err != nil {
		s.logger.Warn().Err(err).Str("counter", string(counter)).Msg("Failed to record daily stat")
	}
}

// RecordProviderAttempt counts one provider search or download attempt.
func (s *Service) RecordProviderAttempt(ctx context.Context, providerName string, success bool) {
	successInc, failureInc := 0, 1
	if success {
		successInc, failureInc = 1, 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_stats (provider_name, attempts, successes, failures, last_attempt_at)
		VALUES (?, 1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (provider_name) DO UPDATE SET
			attempts = attempts + 1,
			successes = successes + ?,
			failures = failures + ?,
			last_attempt_at = CURRENT_TIMESTAMP`,
		providerName, successInc, failureInc, successInc, failureInc)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", providerName).Msg("Failed to record provider stat")
	}
}

// ProviderStat is the aggregate for one provider.
type ProviderStat struct {
	ProviderName  string     `json:"providerName"`
	Attempts      int        `json:"attempts"`
	Successes     int        `json:"successes"`
	Failures      int        `json:"failures"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
}

// SuccessRate returns successes/attempts, 0 for untried providers.
func (p ProviderStat) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// ProviderStats returns all provider aggregates.
func (s *Service) ProviderStats(ctx context.Context) ([]ProviderStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_name, attempts, successes, failures, last_attempt_at
		FROM provider_stats ORDER BY provider_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderStat
	for rows.Next() {
		var p ProviderStat
		var last sql.NullTime
		if err := rows.Scan(&p.ProviderName, &p.Attempts, &p.Successes, &p.Failures, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			p.LastAttemptAt = &last.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DailyStat is one day's counters.
type DailyStat struct {
	Date         string `json:"date"`
	Downloads    int    `json:"downloads"`
	Translations int    `json:"translations"`
	Upgrades     int    `json:"upgrades"`
	Skips        int    `json:"skips"`
	Failures     int    `json:"failures"`
}

// Recent returns the last n days of stats, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]DailyStat, error) {
	if n <= 0 {
		n = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, downloads, translations, upgrades, skips, failures
		FROM daily_stats ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Date, &d.Downloads, &d.Translations, &d.Upgrades, &d.Skips, &d.Failures); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
