package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/scoring"
)

// queryHash canonicalises the query plus format filter into a stable
// cache key.
func queryHash(query *provider.VideoQuery, formatFilter provider.Format) string {
	canonical := struct {
		Query  *provider.VideoQuery `json:"query"`
		Format provider.Format      `json:"format"`
	}{query, formatFilter}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Search fans the query out across providers in order, scores and filters
// each provider's results, and returns the merged list sorted by score
// descending (ties: provider priority, then format rank). A query that
// matches nothing returns an empty list, never an error.
func (m *Manager) Search(ctx context.Context, query *provider.VideoQuery, formatFilter provider.Format) []*provider.SubtitleResult {
	category := scoring.CategoryMovie
	if query.IsEpisode() {
		category = scoring.CategoryEpisode
	}

	key := queryHash(query, formatFilter)
	order := m.Order(ctx)
	priority := make(map[string]int, len(order))
	for i, name := range order {
		priority[name] = i
	}

	var merged []*provider.SubtitleResult
	for _, name := range order {
		breaker := m.Breaker(name)
		if !breaker.AllowRequest() {
			m.logger.Debug().Str("provider", name).Msg("Circuit open; skipping provider")
			continue
		}

		if cached, ok := m.cache.Get(ctx, name, key); ok {
			merged = append(merged, cached...)
			continue
		}

		results := m.searchOne(ctx, name, query, category, formatFilter)
		if results == nil {
			// Provider failed; nothing to cache for this attempt.
			continue
		}
		if err := m.cache.Put(ctx, name, key, results); err != nil {
			m.logger.Warn().Err(err).Str("provider", name).Msg("Failed to cache provider results")
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		pa, pb := priority[a.ProviderName], priority[b.ProviderName]
		if pa != pb {
			return pa < pb
		}
		return a.Format.Rank() > b.Format.Rank()
	})

	return merged
}

// searchOne invokes one provider under its own timeout with panic
// isolation, then scores and filters the results. A nil return means the
// provider call failed; an empty non-nil slice is a legitimate miss.
func (m *Manager) searchOne(ctx context.Context, name string, query *provider.VideoQuery, category scoring.Category, formatFilter provider.Format) []*provider.SubtitleResult {
	breaker := m.Breaker(name)

	inst, err := m.instance(ctx, name)
	if err != nil {
		m.logger.Warn().Err(err).Str("provider", name).Msg("Failed to build provider")
		breaker.RecordFailure()
		m.stats.RecordProviderAttempt(ctx, name, false)
		return nil
	}

	info := inst.Info()
	if err := m.waitForBudget(ctx, name, info.RateLimit); err != nil {
		return nil
	}

	timeout := info.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := callSearch(callCtx, inst, query)
	if err != nil {
		m.logger.Warn().Err(err).Str("provider", name).Msg("Provider search failed")
		breaker.RecordFailure()
		m.stats.RecordProviderAttempt(ctx, name, false)
		return nil
	}

	breaker.RecordSuccess()
	m.stats.RecordProviderAttempt(ctx, name, true)

	kept := make([]*provider.SubtitleResult, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		r.ProviderName = name
		r.Score = m.scorer.Score(ctx, r, category)

		if m.blocked.Contains(ctx, r.ProviderName, r.SubtitleID) {
			continue
		}
		if !query.WantsLanguage(r.Language) {
			continue
		}
		if formatFilter != "" && formatFilter != provider.FormatUnknown && r.Format != formatFilter {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// callSearch isolates a provider call so a panic inside one provider
// cannot terminate the overall search.
func callSearch(ctx context.Context, inst provider.Provider, query *provider.VideoQuery) (results []*provider.SubtitleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return inst.Search(ctx, query)
}
