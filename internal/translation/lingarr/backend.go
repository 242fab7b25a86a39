// Package lingarr implements a translation backend for DeepL-style REST
// services that manage glossaries server side. Glossaries are created
// once per (source, target, content) tuple and reused by id.
package lingarr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sublarr/sublarr/internal/resilience"
	"github.com/sublarr/sublarr/internal/translation"
)

const Name = "lingarr"

const defaultBatchSize = 50

// Backend talks to the remote translate and glossary endpoints.
type Backend struct {
	url       string
	apiKey    string
	batchSize int
	client    *http.Client

	mu         sync.Mutex
	glossaries map[string]string // cache key -> remote glossary id
}

// New builds the backend from its settings map.
func New(settings map[string]string) (translation.Backend, error) {
	url := settings["url"]
	if url == "" {
		return nil, fmt.Errorf("lingarr backend: url is required")
	}

	batchSize := defaultBatchSize
	if raw := settings["batch_size"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}

	return &Backend{
		url:        strings.TrimRight(url, "/"),
		apiKey:     settings["api_key"],
		batchSize:  batchSize,
		client:     &http.Client{Timeout: 60 * time.Second},
		glossaries: make(map[string]string),
	}, nil
}

// Info implements translation.Backend.
func (b *Backend) Info() translation.Info {
	return translation.Info{
		Name:             Name,
		MaxBatchSize:     b.batchSize,
		SupportsGlossary: true,
		SupportsBatching: true,
	}
}

// glossaryKey is stable across runs for identical glossary content.
func glossaryKey(sourceLang, targetLang string, glossary []translation.GlossaryEntry) string {
	h := sha256.New()
	io.WriteString(h, sourceLang)
	io.WriteString(h, "\x00")
	io.WriteString(h, targetLang)
	for _, e := range glossary {
		io.WriteString(h, "\x00")
		io.WriteString(h, e.Source)
		io.WriteString(h, "\x01")
		io.WriteString(h, e.Target)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

type glossaryRequest struct {
	Name       string            `json:"name"`
	SourceLang string            `json:"source_lang"`
	TargetLang string            `json:"target_lang"`
	Entries    map[string]string `json:"entries"`
}

type glossaryResponse struct {
	GlossaryID string `json:"glossary_id"`
}

// ensureGlossary returns the remote glossary id for the entries,
// creating it on first use.
func (b *Backend) ensureGlossary(ctx context.Context, sourceLang, targetLang string, glossary []translation.GlossaryEntry) (string, error) {
	if len(glossary) == 0 {
		return "", nil
	}

	key := glossaryKey(sourceLang, targetLang, glossary)
	b.mu.Lock()
	if id, ok := b.glossaries[key]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	entries := make(map[string]string, len(glossary))
	for _, e := range glossary {
		entries[e.Source] = e.Target
	}
	payload, err := json.Marshal(glossaryRequest{
		Name:       "sublarr-" + key,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Entries:    entries,
	})
	if err != nil {
		return "", err
	}

	var created glossaryResponse
	if err := b.post(ctx, "/v2/glossaries", payload, &created); err != nil {
		return "", fmt.Errorf("glossary create failed: %w", err)
	}
	if created.GlossaryID == "" {
		return "", fmt.Errorf("glossary create returned no id")
	}

	b.mu.Lock()
	b.glossaries[key] = created.GlossaryID
	b.mu.Unlock()
	return created.GlossaryID, nil
}

type translateRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	GlossaryID string   `json:"glossary_id,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// TranslateBatch implements translation.Backend.
func (b *Backend) TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []translation.GlossaryEntry) (*translation.Result, error) {
	start := time.Now()

	glossaryID, err := b.ensureGlossary(ctx, sourceLang, targetLang, glossary)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(translateRequest{
		Text:       lines,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		GlossaryID: glossaryID,
	})
	if err != nil {
		return nil, err
	}

	var resp translateResponse
	if err := b.post(ctx, "/v2/translate", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Translations) != len(lines) {
		return &translation.Result{
			Backend: Name,
			Elapsed: time.Since(start),
			Success: false,
			Error:   fmt.Sprintf("translation count mismatch: got %d, want %d", len(resp.Translations), len(lines)),
		}, nil
	}

	out := make([]string, len(lines))
	charCount := 0
	for i, t := range resp.Translations {
		out[i] = t.Text
		charCount += len(lines[i])
	}

	return &translation.Result{
		Lines:     out,
		Backend:   Name,
		Elapsed:   time.Since(start),
		CharCount: charCount,
		Success:   true,
	}, nil
}

func (b *Backend) post(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "DeepL-Auth-Key "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		delay := time.Second
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				delay = time.Duration(secs) * time.Second
			}
		}
		return fmt.Errorf("%s: %w", path, &resilience.RateLimitError{RetryAfter: delay})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

// HealthCheck implements translation.Backend.
func (b *Backend) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"/v2/languages", http.NoBody)
	if err != nil {
		return false, err.Error()
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "DeepL-Auth-Key "+b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return true, "ok"
}
