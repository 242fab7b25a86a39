// Package mock provides an in-memory provider for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sublarr/sublarr/internal/provider"
)

// Provider is a configurable in-memory subtitle source.
type Provider struct {
	mu sync.Mutex

	Name_       string
	Results     []*provider.SubtitleResult
	Content     map[string][]byte // subtitle id -> bytes
	SearchErr   error
	DownloadErr error
	Panics      bool

	SearchCalls   int
	DownloadCalls int
}

// New creates a mock provider named name.
func New(name string) *Provider {
	return &Provider{
		Name_:   name,
		Content: make(map[string][]byte),
	}
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:      p.Name_,
		Languages: []string{"en", "de", "ja", "fr"},
		Timeout:   5 * time.Second,
	}
}

// Initialize implements provider.Provider.
func (p *Provider) Initialize(ctx context.Context) error { return nil }

// Terminate implements provider.Provider.
func (p *Provider) Terminate() {}

// Search implements provider.Provider.
func (p *Provider) Search(ctx context.Context, query *provider.VideoQuery) ([]*provider.SubtitleResult, error) {
	p.mu.Lock()
	p.SearchCalls++
	p.mu.Unlock()

	if p.Panics {
		panic("mock provider panic")
	}
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}

	out := make([]*provider.SubtitleResult, 0, len(p.Results))
	for _, r := range p.Results {
		copied := *r
		copied.ProviderName = p.Name_
		out = append(out, &copied)
	}
	return out, nil
}

// Download implements provider.Provider.
func (p *Provider) Download(ctx context.Context, result *provider.SubtitleResult) ([]byte, error) {
	p.mu.Lock()
	p.DownloadCalls++
	p.mu.Unlock()

	if p.DownloadErr != nil {
		return nil, p.DownloadErr
	}
	content, ok := p.Content[result.SubtitleID]
	if !ok {
		return nil, fmt.Errorf("mock: no content for %s", result.SubtitleID)
	}
	return content, nil
}

// HealthCheck implements provider.Provider.
func (p *Provider) HealthCheck(ctx context.Context) (bool, string) { return true, "ok" }
