package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/ffmpeg"
	"github.com/sublarr/sublarr/internal/subtitles"
)

// Progress boundaries per phase.
const (
	progressExtractDone    = 0.10
	progressTranscribeDone = 0.95
)

// Queue gates transcription jobs behind a weighted semaphore. Default
// capacity is one; the model is GPU-bound.
type Queue struct {
	store       *Store
	transcriber Transcriber
	ffmpeg      *ffmpeg.Tool
	bus         *events.Bus
	sem         *semaphore.Weighted
	logger      zerolog.Logger

	mu        sync.Mutex
	cancelled map[string]bool
}

// NewQueue creates the transcription queue.
func NewQueue(store *Store, transcriber Transcriber, tool *ffmpeg.Tool, bus *events.Bus, capacity int64, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		store:       store,
		transcriber: transcriber,
		ffmpeg:      tool,
		bus:         bus,
		sem:         semaphore.NewWeighted(capacity),
		logger:      logger.With().Str("component", "whisper-queue").Logger(),
		cancelled:   make(map[string]bool),
	}
}

// Submit enqueues a transcription for mediaPath's audio in language and
// blocks until the job finishes or ctx is cancelled. It returns the
// written SRT path.
func (q *Queue) Submit(ctx context.Context, mediaPath, language string) (string, error) {
	job := &Job{
		ID:        uuid.New().String()[:8],
		Status:    StatusPending,
		MediaPath: mediaPath,
		Language:  language,
		CreatedAt: time.Now(),
	}
	if err := q.store.insert(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist whisper job: %w", err)
	}

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.store.finish(ctx, job.ID, StatusFailed, "", "cancelled while pending: "+err.Error(), time.Now())
		return "", err
	}
	defer q.sem.Release(1)

	// A pending cancel that landed while we waited wins.
	if q.isCancelled(job.ID) {
		return "", fmt.Errorf("whisper job %s cancelled", job.ID)
	}

	return q.run(ctx, job)
}

// Cancel marks a pending job cancelled. Active jobs run to completion.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	ok, err := q.store.cancelPending(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("whisper job %s is not pending", id)
	}
	q.mu.Lock()
	q.cancelled[id] = true
	q.mu.Unlock()
	return nil
}

func (q *Queue) isCancelled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[id]
}

func (q *Queue) run(ctx context.Context, job *Job) (string, error) {
	start := time.Now()
	q.store.setStarted(ctx, job.ID, start)

	fail := func(err error) (string, error) {
		q.store.finish(ctx, job.ID, StatusFailed, "", err.Error(), time.Now())
		q.logger.Error().Err(err).Str("job_id", job.ID).Str("path", job.MediaPath).Msg("Transcription failed")
		return "", err
	}

	// Phase 1: extract audio.
	q.phase(ctx, job, StatusExtracting, 0)
	probe, err := q.ffmpeg.Probe(ctx, job.MediaPath)
	if err != nil {
		return fail(err)
	}
	streamIndex := -1
	for _, s := range probe.AudioStreams() {
		if subtitles.MatchesLanguage(s.Tags.Language, job.Language) {
			streamIndex = s.Index
			break
		}
		if streamIndex < 0 {
			streamIndex = s.Index
		}
	}
	if streamIndex < 0 {
		return fail(fmt.Errorf("no audio stream in %s", job.MediaPath))
	}

	audioDir, err := os.MkdirTemp("", "sublarr-audio-*")
	if err != nil {
		return fail(err)
	}
	defer os.RemoveAll(audioDir)
	audioPath := filepath.Join(audioDir, "audio.wav")

	if err := q.ffmpeg.ExtractAudio(ctx, job.MediaPath, streamIndex, audioPath); err != nil {
		return fail(err)
	}
	q.store.setAudioPath(ctx, job.ID, audioPath)

	// Phase 2: transcribe.
	q.phase(ctx, job, StatusTranscribing, progressExtractDone)
	segments, err := q.transcriber.Transcribe(ctx, audioPath, job.Language)
	if err != nil {
		return fail(err)
	}

	// Phase 3: save.
	q.phase(ctx, job, StatusSaving, progressTranscribeDone)
	outputPath := subtitles.SubtitlePath(job.MediaPath, job.Language, ".srt")
	if err := subtitles.WriteAtomic(outputPath, []byte(SegmentsToSRT(segments))); err != nil {
		return fail(err)
	}

	q.store.finish(ctx, job.ID, StatusCompleted, outputPath, "", time.Now())
	q.emitProgress(job, StatusCompleted, 1)
	q.logger.Info().Str("job_id", job.ID).Str("output", outputPath).
		Dur("elapsed", time.Since(start)).Int("segments", len(segments)).
		Msg("Transcription completed")
	return outputPath, nil
}

func (q *Queue) phase(ctx context.Context, job *Job, status string, progress float64) {
	if err := q.store.setPhase(ctx, job.ID, status, progress); err != nil {
		q.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update job phase")
	}
	q.emitProgress(job, status, progress)
}

func (q *Queue) emitProgress(job *Job, phase string, progress float64) {
	q.bus.Emit(events.EventWhisperProgress, map[string]any{
		"job_id":   job.ID,
		"path":     job.MediaPath,
		"phase":    phase,
		"progress": progress,
	})
}
