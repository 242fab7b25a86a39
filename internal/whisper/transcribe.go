// Package whisper runs audio transcription jobs behind a semaphore so a
// GPU-bound model never runs more than the configured concurrency.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Segment is one transcribed span.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcriber turns an extracted audio file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error)
}

// WhisperXTranscriber shells out to whisperx and reads its JSON output.
type WhisperXTranscriber struct {
	Binary  string
	Model   string
	Device  string
	Timeout time.Duration
}

// NewWhisperXTranscriber builds a transcriber with defaults filled in.
func NewWhisperXTranscriber(binary, model, device string, timeout time.Duration) *WhisperXTranscriber {
	if binary == "" {
		binary = "whisperx"
	}
	if model == "" {
		model = "large-v3"
	}
	if device == "" {
		device = "cpu"
	}
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &WhisperXTranscriber{Binary: binary, Model: model, Device: device, Timeout: timeout}
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// Transcribe implements Transcriber.
func (t *WhisperXTranscriber) Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error) {
	outDir, err := os.MkdirTemp("", "whisperx-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	args := []string{
		audioPath,
		"--model", t.Model,
		"--device", t.Device,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	cmd := exec.CommandContext(ctx, t.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisperx failed: %w: %s", err, tail(string(output), 512))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisperx output missing: %w", err)
	}

	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse whisperx json: %w", err)
	}
	if len(payload.Segments) == 0 {
		return nil, fmt.Errorf("whisperx produced no segments")
	}
	return payload.Segments, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// SegmentsToSRT renders segments as an SRT document.
func SegmentsToSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
