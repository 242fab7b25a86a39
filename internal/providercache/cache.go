// Package providercache persists provider search results keyed by
// (provider, query hash) with a TTL. A hit replaces both the provider
// call and blacklist filtering by yielding materialised results directly.
package providercache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

// Store is the TTL-based provider result cache.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore creates a cache store with the given TTL.
func NewStore(db *sql.DB, ttl time.Duration, logger zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger.With().Str("component", "provider-cache").Logger(),
	}
}

// Get returns cached results for (providerName, queryHash), or
// (nil, false) when absent or expired.
func (s *Store) Get(ctx context.Context, providerName, queryHash string) ([]*provider.SubtitleResult, bool) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT results FROM provider_cache
		WHERE provider_name = ? AND query_hash = ? AND expires_at > CURRENT_TIMESTAMP`,
		providerName, queryHash).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Err(err).Str("provider", providerName).Msg("Failed to read provider cache")
		}
		return nil, false
	}

	var results []*provider.SubtitleResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		s.logger.Warn().Err(err).Str("provider", providerName).Msg("Dropping corrupt cache entry")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM provider_cache WHERE provider_name = ? AND query_hash = ?`, providerName, queryHash)
		return nil, false
	}
	return results, true
}

// Put stores a (possibly empty) result list.
func (s *Store) Put(ctx context.Context, providerName, queryHash string, results []*provider.SubtitleResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_cache (provider_name, query_hash, results, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (provider_name, query_hash) DO UPDATE
		SET results = excluded.results, expires_at = excluded.expires_at, created_at = CURRENT_TIMESTAMP`,
		providerName, queryHash, string(raw), time.Now().UTC().Add(s.ttl))
	return err
}

// Prune removes expired entries. Run from the cleanup scheduler.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM provider_cache WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
