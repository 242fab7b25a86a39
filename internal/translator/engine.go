package translator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/ffmpeg"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/mediaserver"
	"github.com/sublarr/sublarr/internal/provider"
	provmanager "github.com/sublarr/sublarr/internal/provider/manager"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translation"
	"github.com/sublarr/sublarr/internal/whisper"
)

var mediaExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".mov": true, ".ts": true, ".webm": true, ".wmv": true,
}

var assExtensions = []string{".ass", ".ssa"}
var srtExtensions = []string{".srt"}

// Result is the outcome of one pipeline run.
type Result struct {
	Success    bool           `json:"success"`
	Skipped    bool           `json:"skipped"`
	Reason     string         `json:"reason,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	Stats      map[string]any `json:"stats,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Engine is the per-file decision tree. For a media file it decides to
// skip, upgrade an existing subtitle, translate an adjacent or embedded
// one, or fall back to transcription.
type Engine struct {
	cfg         config.TranslatorConfig
	profiles    *ProfileStore
	providers   *provmanager.Manager
	translation *translation.Manager
	whisper     *whisper.Queue
	ffmpeg      *ffmpeg.Tool
	history     *history.Service
	stats       *stats.Service
	mediaserver *mediaserver.Manager
	bus         *events.Bus
	logger      zerolog.Logger
}

// NewEngine wires the translator pipeline. whisper and mediaserver may
// be nil when not configured.
func NewEngine(
	cfg config.TranslatorConfig,
	profiles *ProfileStore,
	providers *provmanager.Manager,
	translationMgr *translation.Manager,
	whisperQueue *whisper.Queue,
	tool *ffmpeg.Tool,
	historySvc *history.Service,
	statsSvc *stats.Service,
	msm *mediaserver.Manager,
	bus *events.Bus,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		profiles:    profiles,
		providers:   providers,
		translation: translationMgr,
		whisper:     whisperQueue,
		ffmpeg:      tool,
		history:     historySvc,
		stats:       statsSvc,
		mediaserver: msm,
		bus:         bus,
		logger:      logger.With().Str("component", "translator").Logger(),
	}
}

// Translate runs the decision tree for one media file. Statistics are
// recorded on every termination, success or not.
func (e *Engine) Translate(ctx context.Context, filePath string, force bool) (*Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return e.fail(ctx, filePath, "file-missing", err)
	}
	if info.IsDir() || !mediaExtensions[strings.ToLower(filepath.Ext(filePath))] {
		return e.fail(ctx, filePath, "not-a-media-file", fmt.Errorf("%s is not a media container", filePath))
	}

	source, target, glossary := e.languages(ctx)

	// Case A: a target-language ASS already sits next to the file.
	if existing, found := subtitles.FindAdjacent(filePath, target, assExtensions, fileExists); found && !force {
		return e.skip(ctx, filePath, "target-ass-present", existing)
	}

	// Case B: a target-language SRT exists; upgrade to ASS if allowed.
	if existing, found := subtitles.FindAdjacent(filePath, target, srtExtensions, fileExists); found && !force {
		if e.cfg.UpgradeEnabled {
			return e.tryUpgrade(ctx, filePath, target, existing)
		}
		return e.skip(ctx, filePath, "target-srt-present-no-upgrade", existing)
	}

	// Case C: no target subtitle at all.
	return e.acquire(ctx, filePath, source, target, glossary)
}

// languages resolves source/target/glossary from the first matching
// profile, falling back to the static defaults.
func (e *Engine) languages(ctx context.Context) (string, string, []translation.GlossaryEntry) {
	source := e.cfg.SourceLanguage
	target := e.cfg.TargetLanguage

	profile, err := e.profiles.ForTarget(ctx, target)
	if err != nil || profile == nil {
		return source, target, nil
	}
	if profile.SourceLanguage != "" {
		source = profile.SourceLanguage
	}
	return source, profile.TargetLanguage, profile.Glossary
}

// tryUpgrade is case B1: search ASS-only and replace the SRT when the
// best result beats the current score by the configured delta.
func (e *Engine) tryUpgrade(ctx context.Context, filePath, target, existing string) (*Result, error) {
	query, err := e.queryFor(filePath, target)
	if err != nil {
		return e.skip(ctx, filePath, "upgrade-query-failed", existing)
	}

	results := e.providers.Search(ctx, query, provider.FormatASS)
	if len(results) == 0 {
		return e.skip(ctx, filePath, "no-upgrade-candidates", existing)
	}

	currentScore := e.history.LastScore(ctx, filePath, target)
	best := results[0]
	if best.Score < currentScore+e.cfg.UpgradeDelta {
		return e.skip(ctx, filePath, "upgrade-delta-not-met", existing)
	}

	downloaded := e.providers.DownloadBest(ctx, query, provider.FormatASS)
	if downloaded == nil {
		return e.skip(ctx, filePath, "upgrade-download-failed", existing)
	}
	if !Accept(downloaded.Content, downloaded.Format) {
		return e.skip(ctx, filePath, "upgrade-unparseable", existing)
	}

	outputPath := subtitles.SubtitlePath(filePath, target, "."+string(downloaded.Format))
	if err := subtitles.WriteAtomic(outputPath, downloaded.Content); err != nil {
		return e.fail(ctx, filePath, "write-failed", err)
	}

	e.history.RecordDownload(ctx, downloaded, filePath)
	e.stats.RecordDaily(ctx, stats.CounterUpgrades)
	e.bus.Emit(events.EventUpgradeComplete, map[string]any{
		"path":      filePath,
		"language":  target,
		"provider":  downloaded.ProviderName,
		"old_score": currentScore,
		"new_score": downloaded.Score,
	})
	e.refresh(ctx, filePath)

	return &Result{
		Success:    true,
		OutputPath: outputPath,
		Stats:      map[string]any{"upgraded": true, "old_score": currentScore, "new_score": downloaded.Score},
	}, nil
}

// acquire walks cases C1 through C5 in order.
func (e *Engine) acquire(ctx context.Context, filePath, source, target string, glossary []translation.GlossaryEntry) (*Result, error) {
	// C1: embedded source-language stream.
	if e.cfg.UseEmbeddedSubs {
		if result, handled := e.fromEmbedded(ctx, filePath, source, target, glossary); handled {
			return result, nil
		}
	}

	query, err := e.queryFor(filePath, target)
	if err != nil {
		return e.fail(ctx, filePath, "query-failed", err)
	}

	// C2: direct target-language download.
	if downloaded := e.providers.DownloadBest(ctx, query, ""); downloaded != nil && Accept(downloaded.Content, downloaded.Format) {
		isASS := downloaded.Format == provider.FormatASS || downloaded.Format == provider.FormatSSA
		if isASS || !e.cfg.PreferASS {
			outputPath := subtitles.SubtitlePath(filePath, target, "."+string(downloaded.Format))
			if err := subtitles.WriteAtomic(outputPath, downloaded.Content); err != nil {
				return e.fail(ctx, filePath, "write-failed", err)
			}
			e.history.RecordDownload(ctx, downloaded, filePath)
			e.stats.RecordDaily(ctx, stats.CounterDownloads)
			e.bus.Emit(events.EventDownloadComplete, map[string]any{
				"path":        filePath,
				"language":    target,
				"provider":    downloaded.ProviderName,
				"subtitle_id": downloaded.SubtitleID,
				"score":       downloaded.Score,
				"format":      string(downloaded.Format),
			})
			e.refresh(ctx, filePath)
			return &Result{Success: true, OutputPath: outputPath,
				Stats: map[string]any{"downloaded": true, "provider": downloaded.ProviderName}}, nil
		}
	}

	// C3: source-language download, then translate.
	query.Languages = []string{source}
	if downloaded := e.providers.DownloadBest(ctx, query, ""); downloaded != nil && Accept(downloaded.Content, downloaded.Format) {
		result, err := e.translateContent(ctx, filePath, downloaded.Content, downloaded.Format, source, target, glossary)
		if err == nil {
			e.history.RecordDownload(ctx, downloaded, filePath)
			return result, nil
		}
		e.logger.Warn().Err(err).Str("path", filePath).Msg("Translating downloaded subtitle failed; trying transcription")
	}

	// C4: transcribe the audio track.
	if e.whisper != nil {
		srtPath, err := e.whisper.Submit(ctx, filePath, source)
		if err == nil {
			content, readErr := os.ReadFile(srtPath)
			if readErr == nil {
				return e.translateContent(ctx, filePath, content, provider.FormatSRT, source, target, glossary)
			}
			err = readErr
		}
		e.logger.Warn().Err(err).Str("path", filePath).Msg("Transcription fallback failed")
	}

	// C5: nothing left.
	return e.fail(ctx, filePath, "no-source-available", fmt.Errorf("no subtitle source available for %s", filePath))
}

// fromEmbedded is case C1. The bool reports whether an embedded stream
// was found and handled; false falls through to C2.
func (e *Engine) fromEmbedded(ctx context.Context, filePath, source, target string, glossary []translation.GlossaryEntry) (*Result, bool) {
	probe, err := e.ffmpeg.Probe(ctx, filePath)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", filePath).Msg("Probe failed; skipping embedded path")
		return nil, false
	}

	for _, stream := range probe.SubtitleStreams() {
		if !subtitles.MatchesLanguage(stream.Tags.Language, source) {
			continue
		}
		ext, textual := ffmpeg.SubtitleExtension(stream.CodecName)
		if !textual {
			continue
		}

		tmpDir, err := os.MkdirTemp("", "sublarr-embedded-*")
		if err != nil {
			return nil, false
		}
		defer os.RemoveAll(tmpDir)
		tmpPath := filepath.Join(tmpDir, "extracted"+ext)

		if err := e.ffmpeg.ExtractSubtitle(ctx, filePath, stream.Index, tmpPath); err != nil {
			e.logger.Warn().Err(err).Int("stream", stream.Index).Msg("Embedded subtitle extraction failed")
			continue
		}
		content, err := os.ReadFile(tmpPath)
		if err != nil {
			continue
		}

		result, err := e.translateContent(ctx, filePath, content, provider.FormatFromExtension(ext), source, target, glossary)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", filePath).Msg("Embedded subtitle translation failed")
			return nil, false
		}
		result.Stats["embedded_stream"] = stream.Index
		return result, true
	}
	return nil, false
}

// queryFor builds a minimal filename-derived query. The wanted search
// loop builds richer queries from catalog metadata; the translator is
// invoked with only a path.
func (e *Engine) queryFor(filePath, lang string) (*provider.VideoQuery, error) {
	query := &provider.VideoQuery{
		FilePath:  filePath,
		Languages: []string{lang},
	}
	if hash, size, err := provider.ComputeFileHash(filePath); err == nil {
		query.FileHash = hash
		query.FileSize = size
	}

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	if season, episode, seriesTitle, ok := parseEpisodeName(name); ok {
		query.SeriesTitle = seriesTitle
		query.Season = season
		query.Episode = episode
	} else {
		query.Title = cleanTitle(name)
	}
	return query, query.Validate()
}

func (e *Engine) refresh(ctx context.Context, filePath string) {
	if e.mediaserver != nil {
		e.mediaserver.RefreshAll(ctx, filePath)
	}
}

func (e *Engine) skip(ctx context.Context, filePath, reason, existing string) (*Result, error) {
	e.stats.RecordDaily(ctx, stats.CounterSkips)
	e.bus.Emit(events.EventPipelineSkipped, map[string]any{
		"path":   filePath,
		"reason": reason,
	})
	return &Result{
		Success: true,
		Skipped: true,
		Reason:  reason,
		Stats:   map[string]any{"skipped": true, "reason": reason, "existing": existing},
	}, nil
}

func (e *Engine) fail(ctx context.Context, filePath, reason string, err error) (*Result, error) {
	e.stats.RecordDaily(ctx, stats.CounterFailures)
	e.bus.Emit(events.EventPipelineFailed, map[string]any{
		"path":   filePath,
		"reason": reason,
		"error":  err.Error(),
	})
	return &Result{
		Success: false,
		Reason:  reason,
		Error:   err.Error(),
		Stats:   map[string]any{"failed": true, "reason": reason},
	}, err
}

// Accept reports whether downloaded subtitle content parses in a
// format the pipeline understands.
func Accept(content []byte, format provider.Format) bool {
	if len(content) == 0 {
		return false
	}
	switch format {
	case provider.FormatASS, provider.FormatSSA:
		_, err := subtitles.ParseASS(string(content))
		return err == nil
	case provider.FormatSRT:
		_, err := subtitles.ParseSRT(string(content))
		return err == nil
	case provider.FormatVTT:
		// VTT is accepted as-is when it carries cue timings.
		return strings.HasPrefix(strings.TrimSpace(string(content)), "WEBVTT") &&
			strings.Contains(string(content), "-->")
	default:
		return false
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
