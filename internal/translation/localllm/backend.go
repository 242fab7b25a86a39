// Package localllm implements a translation backend for a local LLM
// server exposing a single-prompt completion endpoint (Ollama style).
package localllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/translation"
)

const Name = "localllm"

const (
	defaultURL       = "http://localhost:11434"
	defaultModel     = "llama3.1"
	defaultBatchSize = 20
)

// Backend posts completion requests to the local server.
type Backend struct {
	url       string
	model     string
	batchSize int
	client    *http.Client
}

// New builds the backend from its settings map.
func New(settings map[string]string) (translation.Backend, error) {
	url := settings["url"]
	if url == "" {
		url = defaultURL
	}
	model := settings["model"]
	if model == "" {
		model = defaultModel
	}
	batchSize := defaultBatchSize
	if raw := settings["batch_size"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}

	timeout := 120 * time.Second
	if raw := settings["timeout_seconds"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	return &Backend{
		url:       strings.TrimRight(url, "/"),
		model:     model,
		batchSize: batchSize,
		client:    &http.Client{Timeout: timeout},
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

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// TranslateBatch implements translation.Backend.
func (b *Backend) TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []translation.GlossaryEntry) (*translation.Result, error) {
	start := time.Now()
	prompt := translation.BuildPrompt(lines, sourceLang, targetLang, glossary)

	body, err := json.Marshal(generateRequest{Model: b.model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}

	translated, err := translation.ParseResponse(gen.Response, len(lines))
	if err != nil {
		return &translation.Result{
			Backend: Name,
			Elapsed: time.Since(start),
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	charCount := 0
	for _, line := range lines {
		charCount += len(line)
	}

	return &translation.Result{
		Lines:     translated,
		Backend:   Name,
		Elapsed:   time.Since(start),
		CharCount: charCount,
		Success:   true,
	}, nil
}

// HealthCheck implements translation.Backend.
func (b *Backend) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"/api/tags", http.NoBody)
	if err != nil {
		return false, err.Error()
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
