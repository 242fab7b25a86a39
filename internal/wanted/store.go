// Package wanted materialises missing-subtitle work items and drives
// them through the provider pipeline.
package wanted

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Item statuses.
const (
	StatusWanted    = "wanted"
	StatusIgnored   = "ignored"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Item types.
const (
	TypeEpisode = "episode"
	TypeMovie   = "movie"
)

// Item is one persistent missing-subtitle work item. At most one row
// exists per (file_path, target_language, subtitle_type).
type Item struct {
	ID               int64      `json:"id"`
	ItemType         string     `json:"item_type"`
	SeriesID         int64      `json:"series_id,omitempty"`
	EpisodeID        int64      `json:"episode_id,omitempty"`
	MovieID          int64      `json:"movie_id,omitempty"`
	Title            string     `json:"title"`
	SeasonEpisode    string     `json:"season_episode,omitempty"`
	FilePath         string     `json:"file_path"`
	ExistingSubPath  string     `json:"existing_sub_path,omitempty"`
	MissingLanguages []string   `json:"missing_languages"`
	Status           string     `json:"status"`
	LastSearchAt     *time.Time `json:"last_search_at,omitempty"`
	SearchAttempts   int        `json:"search_attempts"`
	LastError        string     `json:"last_error,omitempty"`
	TargetLanguage   string     `json:"target_language"`
	SubtitleType     string     `json:"subtitle_type"`
}

// Store persists wanted items.
type Store struct {
	db *sql.DB
}

// NewStore creates a wanted item store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts the item or refreshes metadata on the existing row.
// Status, attempt counters, and errors on an existing row are kept, so
// re-scans never reset search progress.
func (s *Store) Upsert(ctx context.Context, item *Item) (bool, error) {
	missing, err := json.Marshal(item.MissingLanguages)
	if err != nil {
		return false, err
	}

	var existingID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM wanted_items WHERE file_path = ? AND target_language = ? AND subtitle_type = ?`,
		item.FilePath, item.TargetLanguage, item.SubtitleType).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO wanted_items
				(item_type, series_id, episode_id, movie_id, title, season_episode,
				 file_path, existing_sub_path, missing_languages, status, target_language, subtitle_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ItemType, nullable(item.SeriesID), nullable(item.EpisodeID), nullable(item.MovieID),
			item.Title, item.SeasonEpisode, item.FilePath, item.ExistingSubPath,
			string(missing), StatusWanted, item.TargetLanguage, item.SubtitleType)
		if err != nil {
			return false, fmt.Errorf("failed to insert wanted item: %w", err)
		}
		item.ID, err = res.LastInsertId()
		return true, err
	case err != nil:
		return false, err
	default:
		_, err := s.db.ExecContext(ctx, `
			UPDATE wanted_items SET
				title = ?, season_episode = ?, existing_sub_path = ?,
				missing_languages = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			item.Title, item.SeasonEpisode, item.ExistingSubPath, string(missing), existingID)
		if err != nil {
			return false, fmt.Errorf("failed to update wanted item: %w", err)
		}
		item.ID = existingID
		return false, nil
	}
}

func nullable(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanItem(row)
}

// ListByStatus returns up to limit items with the given status, oldest
// search first so starved items get attention.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE status = ? ORDER BY last_search_at ASC NULLS FIRST, id ASC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// List returns up to limit items of any status, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// RecordAttempt bumps the attempt counter after a failed search and
// transitions to failed once maxAttempts is reached.
func (s *Store) RecordAttempt(ctx context.Context, id int64, searchErr string, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET
			search_attempts = search_attempts + 1,
			last_search_at = CURRENT_TIMESTAMP,
			last_error = ?,
			status = CASE WHEN search_attempts + 1 >= ? THEN ? ELSE status END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		searchErr, maxAttempts, StatusFailed, id)
	return err
}

// MarkCompleted transitions an item to completed after a subtitle was
// written.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET status = ?, last_search_at = CURRENT_TIMESTAMP,
			last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, StatusCompleted, id)
	return err
}

// SetStatus sets an arbitrary status (used by the API for ignore).
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE wanted_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	return err
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wanted_items WHERE id = ?`, id)
	return err
}

const selectColumns = `
	SELECT id, item_type, COALESCE(series_id, 0), COALESCE(episode_id, 0), COALESCE(movie_id, 0),
	       title, season_episode, file_path, COALESCE(existing_sub_path, ''),
	       missing_languages, status, last_search_at, search_attempts,
	       COALESCE(last_error, ''), target_language, subtitle_type
	FROM wanted_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var missing string
	var lastSearch sql.NullTime
	err := row.Scan(&item.ID, &item.ItemType, &item.SeriesID, &item.EpisodeID, &item.MovieID,
		&item.Title, &item.SeasonEpisode, &item.FilePath, &item.ExistingSubPath,
		&missing, &item.Status, &lastSearch, &item.SearchAttempts,
		&item.LastError, &item.TargetLanguage, &item.SubtitleType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(missing), &item.MissingLanguages); err != nil {
		item.MissingLanguages = []string{item.TargetLanguage}
	}
	if lastSearch.Valid {
		t := lastSearch.Time
		item.LastSearchAt = &t
	}
	return &item, nil
}

func collect(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
