// Package mediaserver refreshes media server libraries after subtitle
// changes so new subtitles show up without a manual rescan.
package mediaserver

import "context"

// Instance is one configured media server, decoded from the
// mediaservers config entry (a JSON array).
type Instance struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // plex or jellyfin
	URL     string `json:"url"`
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

// Client refreshes a single media server.
type Client interface {
	// Refresh asks the server to rescan the library section containing
	// path. An empty path requests a full library refresh.
	Refresh(ctx context.Context, path string) error
	// HealthCheck probes connectivity.
	HealthCheck(ctx context.Context) error
}

// RefreshResult is the per-instance outcome of a fan-out refresh.
type RefreshResult struct {
	Instance string `json:"instance"`
	Kind     string `json:"kind"`
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped"` // circuit open or disabled
	Error    string `json:"error,omitempty"`
}
