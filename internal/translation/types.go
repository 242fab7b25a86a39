// Package translation routes line-batch translation requests to one of
// several configurable backends, with chunking, retry, a CJK
// hallucination guard, and per-line degradation fallback.
package translation

import (
	"context"
	"time"
)

// GlossaryEntry is one preferred-term mapping supplied with a request.
type GlossaryEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Result carries the outcome of one backend translation call. Lines are
// in the same order as the input.
type Result struct {
	Lines     []string      `json:"lines"`
	Backend   string        `json:"backend"`
	Elapsed   time.Duration `json:"elapsed"`
	CharCount int           `json:"charCount"`
	Success   bool          `json:"success"`
	Degraded  bool          `json:"degraded"`
	Error     string        `json:"error,omitempty"`
}

// Info is the declarative metadata every backend exposes.
type Info struct {
	Name             string `json:"name"`
	MaxBatchSize     int    `json:"maxBatchSize"`
	SupportsGlossary bool   `json:"supportsGlossary"`
	SupportsBatching bool   `json:"supportsBatching"`
}

// Backend is the contract every translation engine implements.
// TranslateBatch must return lines in input order, one output line per
// input line.
type Backend interface {
	Info() Info
	TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []GlossaryEntry) (*Result, error)
	HealthCheck(ctx context.Context) (bool, string)
}

// BackendFactory builds a backend from its settings map
// (backend.<name>.<key> config entries with the prefix stripped).
type BackendFactory func(settings map[string]string) (Backend, error)
