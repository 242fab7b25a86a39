package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
)

// terminalRetention is how long terminal job metadata stays in memory.
const terminalRetention = 24 * time.Hour

// WorkFunc runs one job. It returns the output path, a stats JSON blob,
// and an error.
type WorkFunc func(ctx context.Context) (outputPath, stats string, err error)

// State is the observable queue snapshot.
type State struct {
	Queued      int    `json:"queued"`
	Active      int    `json:"active"`
	Capacity    int    `json:"capacity"`
	MaxWorkers  int    `json:"max_workers"`
	RecentFailed []Job `json:"recent_failed"`
}

type task struct {
	id   string
	work WorkFunc
}

// Queue is a bounded in-process job queue with M worker slots. Jobs do
// not survive a restart; the store rows exist for history and zombie
// expiry.
type Queue struct {
	store   *Store
	bus     *events.Bus
	logger  zerolog.Logger
	tasks   chan task
	workers int

	mu       sync.Mutex
	jobs     map[string]*Job // in-memory metadata, terminal pruned after 24h
	active   int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a queue with the given worker count and capacity.
func New(store *Store, bus *events.Bus, workers, capacity int, logger zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		store:   store,
		bus:     bus,
		logger:  logger.With().Str("component", "job-queue").Logger(),
		tasks:   make(chan task, capacity),
		workers: workers,
		jobs:    make(map[string]*Job),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info().Int("workers", q.workers).Int("capacity", cap(q.tasks)).Msg("Job queue started")
}

// Stop drains the workers. Queued jobs that never ran stay queued in
// the store and are swept by zombie expiry on the next run.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Submit enqueues work and returns its job id. It fails when the queue
// is full. The store row and in-memory entry exist before the task is
// handed to a worker, so a worker can never run a job it cannot mark.
func (q *Queue) Submit(ctx context.Context, filePath string, force bool, contextJSON, fingerprint string, work WorkFunc) (string, error) {
	job := &Job{
		ID:                uuid.New().String()[:8],
		Status:            StatusQueued,
		FilePath:          filePath,
		ForceRun:          force,
		Context:           contextJSON,
		ConfigFingerprint: fingerprint,
		CreatedAt:         time.Now(),
	}

	if err := q.store.insert(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}
	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.tasks <- task{id: job.ID, work: work}:
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		if err := q.store.delete(ctx, job.ID); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to roll back rejected job row")
		}
		return "", fmt.Errorf("job queue is full (%d pending)", cap(q.tasks))
	}

	q.bus.Emit(events.EventQueueJobQueued, map[string]any{
		"job_id": job.ID,
		"path":   filePath,
	})
	return job.ID, nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t task) {
	now := time.Now()

	q.mu.Lock()
	job, ok := q.jobs[t.id]
	if ok {
		job.Status = StatusRunning
		job.StartedAt = &now
	}
	q.active++
	q.mu.Unlock()

	if err := q.store.markRunning(ctx, t.id, now); err != nil {
		q.logger.Error().Err(err).Str("job_id", t.id).Msg("Failed to mark job running")
	}

	outputPath, stats, err := t.work(ctx)

	finished := time.Now()
	status := StatusCompleted
	errMsg := ""
	if err != nil {
		status = StatusFailed
		errMsg = err.Error()
	}

	q.mu.Lock()
	if job != nil {
		job.Status = status
		job.OutputPath = outputPath
		job.Stats = stats
		job.Error = errMsg
		job.FinishedAt = &finished
	}
	q.active--
	q.mu.Unlock()

	if err := q.store.markFinished(ctx, t.id, status, outputPath, stats, errMsg, finished); err != nil {
		q.logger.Error().Err(err).Str("job_id", t.id).Msg("Failed to mark job finished")
	}

	q.mu.Lock()
	path := ""
	if job != nil {
		path = job.FilePath
	}
	q.mu.Unlock()

	q.bus.Emit(events.EventQueueJobDone, map[string]any{
		"job_id": t.id,
		"path":   path,
		"status": status,
		"error":  errMsg,
	})
}

// Job returns in-memory metadata for id, falling back to the store for
// jobs pruned from memory.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	if job, ok := q.jobs[id]; ok {
		copied := *job
		q.mu.Unlock()
		return &copied, nil
	}
	q.mu.Unlock()
	return q.store.Get(ctx, id)
}

// Recent lists recent job rows, newest first.
func (q *Queue) Recent(ctx context.Context, limit int) ([]Job, error) {
	return q.store.Recent(ctx, limit)
}

// StateSnapshot reports queue length, active workers, and recent
// failures.
func (q *Queue) StateSnapshot() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := State{
		Queued:     len(q.tasks),
		Active:     q.active,
		Capacity:   cap(q.tasks),
		MaxWorkers: q.workers,
	}
	for _, job := range q.jobs {
		if job.Status == StatusFailed {
			state.RecentFailed = append(state.RecentFailed, *job)
		}
	}
	return state
}

// PruneTerminal drops in-memory metadata for jobs that finished more
// than 24 hours ago. Called by the cleanup scheduler.
func (q *Queue) PruneTerminal(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	pruned := 0
	for id, job := range q.jobs {
		if job.FinishedAt == nil {
			continue
		}
		if (job.Status == StatusCompleted || job.Status == StatusFailed) &&
			now.Sub(*job.FinishedAt) > terminalRetention {
			delete(q.jobs, id)
			pruned++
		}
	}
	return pruned
}
