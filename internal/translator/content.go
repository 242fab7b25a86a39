package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translation"
)

// translateContent translates parsed subtitle content and writes the
// result next to the media file, preserving the input format.
func (e *Engine) translateContent(ctx context.Context, filePath string, content []byte, format provider.Format, source, target string, glossary []translation.GlossaryEntry) (*Result, error) {
	e.bus.Emit(events.EventTranslateStarted, map[string]any{
		"path":    filePath,
		"source":  source,
		"target":  target,
		"backend": e.translation.ActiveName(ctx),
	})
	start := time.Now()

	var output []byte
	var lineCount int
	var err error
	switch format {
	case provider.FormatASS, provider.FormatSSA:
		output, lineCount, err = e.translateASS(ctx, content, source, target, glossary)
	case provider.FormatSRT:
		output, lineCount, err = e.translateSRT(ctx, content, source, target, glossary)
	default:
		err = fmt.Errorf("cannot translate format %q", format)
	}
	if err != nil {
		return e.fail(ctx, filePath, "translation-failed", err)
	}

	outputPath := subtitles.SubtitlePath(filePath, target, "."+string(format))
	if err := subtitles.WriteAtomic(outputPath, output); err != nil {
		return e.fail(ctx, filePath, "write-failed", err)
	}

	e.stats.RecordDaily(ctx, stats.CounterTranslations)
	e.bus.Emit(events.EventTranslateComplete, map[string]any{
		"path":       filePath,
		"source":     source,
		"target":     target,
		"backend":    e.translation.ActiveName(ctx),
		"lines":      lineCount,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	e.refresh(ctx, filePath)

	return &Result{
		Success:    true,
		OutputPath: outputPath,
		Stats: map[string]any{
			"translated": true,
			"lines":      lineCount,
			"source":     source,
			"target":     target,
		},
	}, nil
}

// translateSRT translates every cue of an SRT document.
func (e *Engine) translateSRT(ctx context.Context, content []byte, source, target string, glossary []translation.GlossaryEntry) ([]byte, int, error) {
	doc, err := subtitles.ParseSRT(string(content))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse srt: %w", err)
	}

	texts := doc.Texts()
	result, err := e.translation.Translate(ctx, texts, source, target, glossary)
	if err != nil {
		return nil, 0, err
	}

	normalized := make([]string, len(result.Lines))
	for i, line := range result.Lines {
		normalized[i] = subtitles.NormalizeBreaks(line)
	}
	if err := doc.SetTexts(normalized); err != nil {
		return nil, 0, err
	}
	return []byte(doc.Render()), len(texts), nil
}

// translateASS translates the dialog events of an ASS script, leaving
// signs, songs, and comments untouched, and round-trips override tags
// through the translation.
func (e *Engine) translateASS(ctx context.Context, content []byte, source, target string, glossary []translation.GlossaryEntry) ([]byte, int, error) {
	script, err := subtitles.ParseASS(string(content))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse ass: %w", err)
	}

	classes := subtitles.ClassifyStyles(script)
	indexes := script.DialogueIndexes(classes)
	if len(indexes) == 0 {
		return nil, 0, fmt.Errorf("no translatable dialog lines")
	}

	cleanLines := make([]string, len(indexes))
	tagSets := make([][]subtitles.Tag, len(indexes))
	cleanLens := make([]int, len(indexes))
	for i, idx := range indexes {
		clean, tags := subtitles.ExtractTags(script.Events[idx].Text)
		cleanLines[i] = clean
		tagSets[i] = tags
		cleanLens[i] = len([]rune(clean))
	}

	result, err := e.translation.Translate(ctx, cleanLines, source, target, glossary)
	if err != nil {
		return nil, 0, err
	}

	for i, idx := range indexes {
		translated := subtitles.NormalizeBreaks(result.Lines[i])
		script.Events[idx].Text = subtitles.ReinsertTags(translated, tagSets[i], cleanLens[i])
	}
	return []byte(script.Render()), len(indexes), nil
}
