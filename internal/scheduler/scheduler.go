// Package scheduler runs the periodic background tasks on gocron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes one scheduled task. Either Cron or Interval is
// set. Interval is re-evaluated after every run so configuration
// changes take effect on the next cycle; an interval of zero disables
// the task.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Cron        string                // fixed cron expression (UTC)
	Interval    func() time.Duration  // dynamic interval, re-read each cycle
	Func        TaskFunc
	RunOnStart  bool
}

// TaskInfo describes a task for status endpoints.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

type taskEntry struct {
	config   TaskConfig
	job      gocron.Job
	interval time.Duration
	lastRun  *time.Time
	running  bool
}

// Scheduler manages background scheduled tasks.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger
	tasks  map[string]*taskEntry
	mu     sync.RWMutex
}

// New creates a scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// RegisterTask registers one task. Registering an interval task whose
// current interval is zero records it as disabled.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	entry := &taskEntry{config: config}
	taskFunc := func() { s.executeTask(config.ID) }

	switch {
	case config.Cron != "":
		job, err := s.gocron.NewJob(
			gocron.CronJob(config.Cron, false),
			gocron.NewTask(taskFunc),
			gocron.WithName(config.Name),
			gocron.WithTags(config.ID),
		)
		if err != nil {
			return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
		}
		entry.job = job
	case config.Interval != nil:
		entry.interval = config.Interval()
		if entry.interval > 0 {
			job, err := s.gocron.NewJob(
				gocron.DurationJob(entry.interval),
				gocron.NewTask(taskFunc),
				gocron.WithName(config.Name),
				gocron.WithTags(config.ID),
			)
			if err != nil {
				return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
			}
			entry.job = job
		}
	default:
		return fmt.Errorf("task %q has neither cron nor interval", config.ID)
	}

	s.tasks[config.ID] = entry
	s.logger.Info().Str("id", config.ID).Str("name", config.Name).
		Bool("runOnStart", config.RunOnStart).Msg("Registered task")
	return nil
}

// executeTask runs a task, then re-reads its interval so configuration
// changes apply to the next cycle.
func (s *Scheduler) executeTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	startTime := time.Now()
	s.logger.Info().Str("id", taskID).Msg("Starting task")

	err := entry.config.Func(context.Background())

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &startTime
	s.mu.Unlock()

	duration := time.Since(startTime)
	if err != nil {
		s.logger.Error().Err(err).Str("id", taskID).Dur("duration", duration).Msg("Task failed")
	} else {
		s.logger.Info().Str("id", taskID).Dur("duration", duration).Msg("Task completed")
	}

	s.refreshInterval(taskID)
}

// refreshInterval reschedules an interval task whose configured
// interval changed since the last run.
func (s *Scheduler) refreshInterval(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[taskID]
	if !exists || entry.config.Interval == nil || entry.job == nil {
		return
	}
	next := entry.config.Interval()
	if next == entry.interval || next <= 0 {
		return
	}

	taskFunc := func() { s.executeTask(taskID) }
	job, err := s.gocron.Update(
		entry.job.ID(),
		gocron.DurationJob(next),
		gocron.NewTask(taskFunc),
		gocron.WithName(entry.config.Name),
		gocron.WithTags(taskID),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("id", taskID).Msg("Failed to reschedule task")
		return
	}
	entry.job = job
	entry.interval = next
	s.logger.Info().Str("id", taskID).Dur("interval", next).Msg("Task rescheduled")
}

// Start starts the scheduler and fires RunOnStart tasks. Idempotent.
func (s *Scheduler) Start() {
	s.gocron.Start()

	s.mu.RLock()
	var toRun []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			toRun = append(toRun, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range toRun {
		go s.executeTask(taskID)
	}
}

// Stop shuts the scheduler down gracefully.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}

// RunNow triggers a task immediately.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if running {
		return fmt.Errorf("task %q is already running", taskID)
	}
	go s.executeTask(taskID)
	return nil
}

// ListTasks reports every registered task.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		info := TaskInfo{
			ID:          entry.config.ID,
			Name:        entry.config.Name,
			Description: entry.config.Description,
			LastRun:     entry.lastRun,
			Running:     entry.running,
		}
		if entry.config.Cron != "" {
			info.Schedule = entry.config.Cron
		} else if entry.interval > 0 {
			info.Schedule = entry.interval.String()
		} else {
			info.Schedule = "disabled"
		}
		if entry.job != nil {
			if nextRun, err := entry.job.NextRun(); err == nil {
				info.NextRun = &nextRun
			}
		}
		tasks = append(tasks, info)
	}
	return tasks
}
