// Package history records every committed subtitle download so upgrades
// and the UI can see what was written and why.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

// Entry is one recorded download.
type Entry struct {
	ID           int64     `json:"id"`
	ProviderName string    `json:"providerName"`
	SubtitleID   string    `json:"subtitleId"`
	FilePath     string    `json:"filePath"`
	Language     string    `json:"language"`
	Format       string    `json:"format"`
	Score        int       `json:"score"`
	Matches      []string  `json:"matches"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Service provides download history management.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// RecordDownload persists one committed subtitle result for a media file.
func (s *Service) RecordDownload(ctx context.Context, result *provider.SubtitleResult, filePath string) error {
	matches := make([]string, 0, len(result.Matches))
	for kind := range result.Matches {
		matches = append(matches, kind)
	}
	matchesJSON, err := json.Marshal(matches)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subtitle_downloads (provider_name, subtitle_id, file_path, language, format, score, matches)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ProviderName, result.SubtitleID, filePath, result.Language, string(result.Format), result.Score, string(matchesJSON))
	return err
}

// LastScore returns the score of the most recent download for
// (filePath, language), or 0 when none is recorded.
func (s *Service) LastScore(ctx context.Context, filePath, language string) int {
	var score int
	err := s.db.QueryRowContext(ctx, `
		SELECT score FROM subtitle_downloads
		WHERE file_path = ? AND language = ?
		ORDER BY created_at DESC LIMIT 1`, filePath, language).Scan(&score)
	if err != nil {
		return 0
	}
	return score
}

// List returns recent downloads with pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_name, subtitle_id, file_path, language, format, score, matches, created_at
		FROM subtitle_downloads ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var matchesJSON string
		if err := rows.Scan(&e.ID, &e.ProviderName, &e.SubtitleID, &e.FilePath, &e.Language, &e.Format, &e.Score, &matchesJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(matchesJSON), &e.Matches); err != nil {
			e.Matches = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the retention window.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM subtitle_downloads WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
