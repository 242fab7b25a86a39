// Package blacklist tracks (provider, subtitle id) pairs that must never
// be downloaded again. Entries are never auto-pruned.
package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one blacklisted subtitle.
type Entry struct {
	ID           int64     `json:"id"`
	ProviderName string    `json:"providerName"`
	SubtitleID   string    `json:"subtitleId"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists the blacklist.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a blacklist store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "blacklist").Logger(),
	}
}

// Add blacklists (providerName, subtitleID) with a reason. Adding an
// existing pair updates the reason.
func (s *Store) Add(ctx context.Context, providerName, subtitleID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blacklist (provider_name, subtitle_id, reason) VALUES (?, ?, ?)
		ON CONFLICT (provider_name, subtitle_id) DO UPDATE SET reason = excluded.reason`,
		providerName, subtitleID, reason)
	return err
}

// Contains reports whether the pair is blacklisted.
func (s *Store) Contains(ctx context.Context, providerName, subtitleID string) bool {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blacklist WHERE provider_name = ? AND subtitle_id = ?`,
		providerName, subtitleID).Scan(&one)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Err(err).Msg("Failed to check blacklist")
		}
		return false
	}
	return true
}

// Remove lifts a blacklist entry (operator action).
func (s *Store) Remove(ctx context.Context, providerName, subtitleID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blacklist WHERE provider_name = ? AND subtitle_id = ?`,
		providerName, subtitleID)
	return err
}

// List returns all entries, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_name, subtitle_id, reason, created_at
		FROM blacklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProviderName, &e.SubtitleID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
