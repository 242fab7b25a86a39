// Package queue runs translation jobs on a bounded pool of workers,
// persisting job metadata to the jobs table.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Job is one queued translation run.
type Job struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	FilePath          string     `json:"file_path"`
	ForceRun          bool       `json:"force_run"`
	Context           string     `json:"context,omitempty"`
	OutputPath        string     `json:"output_path,omitempty"`
	Stats             string     `json:"stats,omitempty"`
	Error             string     `json:"error,omitempty"`
	ConfigFingerprint string     `json:"config_fingerprint,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store persists job rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) insert(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, file_path, force_run, context, config_fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Status, job.FilePath, job.ForceRun, job.Context, job.ConfigFingerprint, job.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *Store) markRunning(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		StatusRunning, at.UTC(), id)
	return err
}

func (s *Store) markFinished(ctx context.Context, id, status, outputPath, stats, errMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, output_path = ?, stats = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, outputPath, stats, errMsg, at.UTC(), id)
	return err
}

// Get returns one job row.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, file_path, force_run, COALESCE(context, ''), COALESCE(output_path, ''),
		       COALESCE(stats, ''), COALESCE(error, ''), COALESCE(config_fingerprint, ''),
		       created_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Recent returns the newest limit jobs.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, file_path, force_run, COALESCE(context, ''), COALESCE(output_path, ''),
		       COALESCE(stats, ''), COALESCE(error, ''), COALESCE(config_fingerprint, ''),
		       created_at, started_at, finished_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ExpireZombies marks running jobs older than maxAge as failed. Returns
// the ids it expired.
func (s *Store) ExpireZombies(ctx context.Context, maxAge time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-maxAge).UTC()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? AND started_at < ?`, StatusRunning, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.markFinished(ctx, id, StatusFailed, "", "", "zombie expiry: running longer than "+maxAge.String(), now); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Status, &job.FilePath, &job.ForceRun, &job.Context,
		&job.OutputPath, &job.Stats, &job.Error, &job.ConfigFingerprint,
		&job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
