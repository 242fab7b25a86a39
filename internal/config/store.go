package config

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
)

// Store provides runtime configuration overrides persisted in the
// config_entries table. Values are stored as strings and coerced to the
// type of the caller-supplied default at read time; entries that cannot
// be coerced fall back to the default.
type Store struct {
	db     *sql.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewStore creates a new config entry store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "config-store").Logger(),
	}
}

// AttachBus makes every write emit a config_updated event so caches
// built from config entries reload without a restart.
func (s *Store) AttachBus(bus *events.Bus) {
	s.bus = bus
}

func (s *Store) notify(key string) {
	if s.bus != nil {
		s.bus.Emit(events.EventConfigUpdated, events.Payload{"key": key})
	}
}

// Get returns the raw value for key, or an empty string if unset.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config_entries WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read config entry")
		}
		return "", false
	}
	return value, true
}

// GetString returns the override for key, or def when unset.
func (s *Store) GetString(ctx context.Context, key, def string) string {
	if v, ok := s.Get(ctx, key); ok {
		return v
	}
	return def
}

// GetInt returns the override for key coerced to int, or def when unset
// or unparseable.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	v, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.logger.Debug().Str("key", key).Str("value", v).Msg("Ignoring non-integer config override")
		return def
	}
	return n
}

// GetBool returns the override for key coerced to bool, or def when unset
// or unparseable.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		s.logger.Debug().Str("key", key).Str("value", v).Msg("Ignoring non-boolean config override")
		return def
	}
	return b
}

// GetFloat returns the override for key coerced to float64, or def when
// unset or unparseable.
func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	v, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		s.logger.Debug().Str("key", key).Str("value", v).Msg("Ignoring non-numeric config override")
		return def
	}
	return f
}

// Set upserts an override.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return err
	}
	s.notify(key)
	return nil
}

// Delete removes an override, restoring the static default.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE key = ?`, key)
	if err != nil {
		return err
	}
	s.notify(key)
	return nil
}

// Namespace returns all overrides whose keys start with prefix, with the
// prefix stripped. Used for backend.<name>.<key> style settings.
func (s *Store) Namespace(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config_entries WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(key, prefix)] = value
	}
	return out, rows.Err()
}
