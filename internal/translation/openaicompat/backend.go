// Package openaicompat implements a translation backend for any
// OpenAI-compatible chat-completion endpoint.
package openaicompat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sublarr/sublarr/internal/translation"
)

const Name = "openai"

const defaultBatchSize = 30

// Backend sends numbered-prompt chat completions.
type Backend struct {
	client    *openai.Client
	model     string
	batchSize int
}

// New builds the backend from its settings map. base_url allows pointing
// at any compatible server (LM Studio, vLLM, OpenRouter).
func New(settings map[string]string) (translation.Backend, error) {
	apiKey := settings["api_key"]
	baseURL := settings["base_url"]
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai backend: api_key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	model := settings["model"]
	if model == "" {
		model = openai.GPT4oMini
	}

	batchSize := defaultBatchSize
	if raw := settings["batch_size"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}

	return &Backend{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		batchSize: batchSize,
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

// TranslateBatch implements translation.Backend.
func (b *Backend) TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []translation.GlossaryEntry) (*translation.Result, error) {
	start := time.Now()
	prompt := translation.BuildPrompt(lines, sourceLang, targetLang, glossary)

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a professional subtitle translator. Translate precisely and keep the line numbering.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	translated, err := translation.ParseResponse(resp.Choices[0].Message.Content, len(lines))
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
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := b.client.ListModels(ctx)
	if err != nil {
		return false, err.Error()
	}
	return true, "ok"
}
