// Package backup takes online SQLite backups and rotates them on a
// daily/weekly/monthly scheme.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Retention caps per rotation tier.
type Retention struct {
	Daily   int
	Weekly  int
	Monthly int
}

// Service produces and rotates database backups.
type Service struct {
	db        *sql.DB
	dir       string
	retention Retention
	logger    zerolog.Logger
}

// NewService creates a backup service writing into dir.
func NewService(db *sql.DB, dir string, retention Retention, logger zerolog.Logger) *Service {
	if retention.Daily <= 0 {
		retention.Daily = 7
	}
	if retention.Weekly <= 0 {
		retention.Weekly = 4
	}
	if retention.Monthly <= 0 {
		retention.Monthly = 3
	}
	return &Service{
		db:        db,
		dir:       dir,
		retention: retention,
		logger:    logger.With().Str("component", "backup").Logger(),
	}
}

// Run takes one backup and rotates old ones. The backup is a full
// online copy via VACUUM INTO, safe while the database is in use.
func (s *Service) Run(ctx context.Context) (string, error) {
	return s.runAt(ctx, time.Now().UTC())
}

func (s *Service) runAt(ctx context.Context, now time.Time) (string, error) {
	tier := "daily"
	switch {
	case now.Day() == 1:
		tier = "monthly"
	case now.Weekday() == time.Sunday:
		tier = "weekly"
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	name := fmt.Sprintf("sublarr-%s-%s.db", tier, now.Format("20060102-150405"))
	target := filepath.Join(s.dir, name)

	// VACUUM INTO refuses to overwrite; a leftover partial file from a
	// crashed run is removed first.
	os.Remove(target)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}
	s.logger.Info().Str("path", target).Str("tier", tier).Msg("Database backup written")

	if err := s.rotate(); err != nil {
		s.logger.Error().Err(err).Msg("Backup rotation failed")
	}
	return target, nil
}

// rotate enforces the per-tier retention limits, deleting the oldest
// files first.
func (s *Service) rotate() error {
	limits := map[string]int{
		"daily":   s.retention.Daily,
		"weekly":  s.retention.Weekly,
		"monthly": s.retention.Monthly,
	}

	for tier, limit := range limits {
		matches, err := filepath.Glob(filepath.Join(s.dir, "sublarr-"+tier+"-*.db"))
		if err != nil {
			return err
		}
		if len(matches) <= limit {
			continue
		}
		// Timestamps in the name sort lexically.
		sort.Strings(matches)
		for _, path := range matches[:len(matches)-limit] {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			s.logger.Debug().Str("path", path).Msg("Rotated old backup")
		}
	}
	return nil
}

// List returns existing backups, newest first.
func (s *Service) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "sublarr-*.db"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for i, m := range matches {
		matches[i] = strings.TrimPrefix(m, s.dir+string(os.PathSeparator))
	}
	return matches, nil
}
