// Package ffmpeg shells out to ffprobe and ffmpeg to inspect media
// containers, extract embedded subtitle streams, and extract audio for
// transcription.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool invokes the external binaries with capped timeouts.
type Tool struct {
	FFprobeBin string
	FFmpegBin  string
	Timeout    time.Duration
}

// New returns a Tool with the given binary paths; empty paths fall back
// to the names on PATH.
func New(ffprobeBin, ffmpegBin string, timeout time.Duration) *Tool {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Tool{FFprobeBin: ffprobeBin, FFmpegBin: ffmpegBin, Timeout: timeout}
}

// Stream describes one stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Tags      struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
	Disposition struct {
		Forced          int `json:"forced"`
		HearingImpaired int `json:"hearing_impaired"`
	} `json:"disposition"`
}

// ProbeResult is the decoded ffprobe output.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
}

// SubtitleStreams filters to subtitle streams.
func (r ProbeResult) SubtitleStreams() []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "subtitle") {
			out = append(out, s)
		}
	}
	return out
}

// AudioStreams filters to audio streams.
func (r ProbeResult) AudioStreams() []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			out = append(out, s)
		}
	}
	return out
}

// Probe inspects a media container.
func (t *Tool) Probe(ctx context.Context, path string) (ProbeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFprobeBin,
		"-v", "error", "-hide_banner", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// textSubtitleCodecs are the embedded formats we can extract as text.
var textSubtitleCodecs = map[string]string{
	"ass":          ".ass",
	"ssa":          ".ssa",
	"subrip":       ".srt",
	"srt":          ".srt",
	"webvtt":       ".vtt",
	"mov_text":     ".srt",
	"text":         ".srt",
}

// SubtitleExtension returns the output extension for an embedded
// subtitle codec, or false for bitmap formats (pgs, dvdsub).
func SubtitleExtension(codec string) (string, bool) {
	ext, ok := textSubtitleCodecs[strings.ToLower(codec)]
	return ext, ok
}

// ExtractSubtitle copies one subtitle stream into outPath. The stream
// index is the container index reported by Probe.
func (t *Tool) ExtractSubtitle(ctx context.Context, mediaPath string, streamIndex int, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFmpegBin,
		"-v", "error", "-hide_banner", "-y",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "copy",
		outPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Some codecs cannot be stream-copied into the target format;
		// retry with transcoding.
		cmd = exec.CommandContext(ctx, t.FFmpegBin,
			"-v", "error", "-hide_banner", "-y",
			"-i", mediaPath,
			"-map", fmt.Sprintf("0:%d", streamIndex),
			outPath)
		output2, err2 := cmd.CombinedOutput()
		if err2 != nil {
			return fmt.Errorf("ffmpeg subtitle extract: %w: %s / %s", err2,
				strings.TrimSpace(string(output)), strings.TrimSpace(string(output2)))
		}
	}
	return nil
}

// ExtractAudio extracts one audio stream as 16 kHz mono WAV, the input
// format whisper expects.
func (t *Tool) ExtractAudio(ctx context.Context, mediaPath string, streamIndex int, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFmpegBin,
		"-v", "error", "-hide_banner", "-y",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg audio extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
