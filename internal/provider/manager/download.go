package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/sublarr/sublarr/internal/provider"
)

// DownloadBest searches and walks the ranked results, downloading the
// first candidate that is not blacklisted and whose provider call
// succeeds. Failed downloads are blacklisted with the error message and
// the walk continues. Returns nil when every candidate is exhausted.
func (m *Manager) DownloadBest(ctx context.Context, query *provider.VideoQuery, formatFilter provider.Format) *provider.SubtitleResult {
	results := m.Search(ctx, query, formatFilter)

	for _, result := range results {
		if m.blocked.Contains(ctx, result.ProviderName, result.SubtitleID) {
			continue
		}

		content, err := m.Download(ctx, result)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("provider", result.ProviderName).
				Str("subtitleId", result.SubtitleID).
				Msg("Download failed; blacklisting result")
			if blErr := m.blocked.Add(ctx, result.ProviderName, result.SubtitleID, err.Error()); blErr != nil {
				m.logger.Warn().Err(blErr).Msg("Failed to record blacklist entry")
			}
			continue
		}

		result.Content = content
		return result
	}
	return nil
}

// Blacklist records a bad result so later walks skip it. Used by
// callers that reject content after download, for example when it does
// not parse as a subtitle.
func (m *Manager) Blacklist(ctx context.Context, providerName, subtitleID, reason string) {
	if err := m.blocked.Add(ctx, providerName, subtitleID, reason); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to record blacklist entry")
	}
}

// Download fetches subtitle bytes for one result through its provider,
// honouring the provider's timeout and circuit breaker.
func (m *Manager) Download(ctx context.Context, result *provider.SubtitleResult) ([]byte, error) {
	breaker := m.Breaker(result.ProviderName)
	if !breaker.AllowRequest() {
		return nil, fmt.Errorf("provider %s circuit is open", result.ProviderName)
	}

	inst, err := m.instance(ctx, result.ProviderName)
	if err != nil {
		breaker.RecordFailure()
		return nil, err
	}

	info := inst.Info()
	if err := m.waitForBudget(ctx, result.ProviderName, info.RateLimit); err != nil {
		return nil, err
	}

	timeout := info.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := inst.Download(callCtx, result)
	if err != nil {
		breaker.RecordFailure()
		m.stats.RecordProviderAttempt(ctx, result.ProviderName, false)
		return nil, err
	}
	if len(content) == 0 {
		breaker.RecordFailure()
		m.stats.RecordProviderAttempt(ctx, result.ProviderName, false)
		return nil, fmt.Errorf("provider %s returned empty subtitle", result.ProviderName)
	}

	breaker.RecordSuccess()
	m.stats.RecordProviderAttempt(ctx, result.ProviderName, true)
	return content, nil
}
