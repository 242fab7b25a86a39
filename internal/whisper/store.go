package whisper

import (
	"context"
	"database/sql"
	"time"
)

// Job statuses. pending jobs can be cancelled; the three terminal
// states are archived.
const (
	StatusPending      = "pending"
	StatusExtracting   = "extracting"
	StatusTranscribing = "transcribing"
	StatusSaving       = "saving"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusCancelled    = "cancelled"
)

// Job is one transcription request.
type Job struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	MediaPath  string     `json:"media_path"`
	AudioPath  string     `json:"audio_path,omitempty"`
	Language   string     `json:"language"`
	OutputPath string     `json:"output_path,omitempty"`
	Progress   float64    `json:"progress"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store persists whisper job rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a whisper job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) insert(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whisper_jobs (id, status, media_path, language, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Status, job.MediaPath, job.Language, job.Progress, job.CreatedAt.UTC())
	return err
}

func (s *Store) setPhase(ctx context.Context, id, status string, progress float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE whisper_jobs SET status = ?, progress = ? WHERE id = ?`,
		status, progress, id)
	return err
}

func (s *Store) setStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE whisper_jobs SET started_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}

func (s *Store) setAudioPath(ctx context.Context, id, audioPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE whisper_jobs SET audio_path = ? WHERE id = ?`, audioPath, id)
	return err
}

func (s *Store) finish(ctx context.Context, id, status, outputPath, errMsg string, at time.Time) error {
	progress := 1.0
	if status != StatusCompleted {
		progress = 0
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE whisper_jobs SET status = ?, output_path = ?, error = ?, progress = ?, finished_at = ?
		WHERE id = ?`,
		status, outputPath, errMsg, progress, at.UTC(), id)
	return err
}

// cancelPending flips a pending job to cancelled. Returns false when the
// job already left pending.
func (s *Store) cancelPending(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE whisper_jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled, at.UTC(), id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get returns one job row.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, media_path, COALESCE(audio_path, ''), language,
		       COALESCE(output_path, ''), progress, COALESCE(error, ''),
		       created_at, started_at, finished_at
		FROM whisper_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns the newest limit jobs.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, media_path, COALESCE(audio_path, ''), language,
		       COALESCE(output_path, ''), progress, COALESCE(error, ''),
		       created_at, started_at, finished_at
		FROM whisper_jobs ORDER BY created_at DESC LIMIT ?`, limit)
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

// PruneArchived deletes terminal jobs older than the retention window.
func (s *Store) PruneArchived(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention).UTC()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM whisper_jobs
		WHERE status IN (?, ?, ?) AND finished_at < ?`,
		StatusCompleted, StatusFailed, StatusCancelled, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Status, &job.MediaPath, &job.AudioPath, &job.Language,
		&job.OutputPath, &job.Progress, &job.Error, &job.CreatedAt, &startedAt, &finishedAt)
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
