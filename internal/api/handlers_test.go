package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/websocket"
)

func newSettingsServer(t *testing.T) (*Server, *config.Store, *[]string) {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := config.NewStore(db.Conn, db.Logger)

	bus := events.NewBus(db.Logger)
	var updated []string
	bus.Subscribe(events.EventConfigUpdated, func(name string, payload events.Payload) {
		updated = append(updated, payload["key"].(string))
	})
	store.AttachBus(bus)

	srv := NewServer(Deps{Settings: store, Hub: websocket.NewHub()}, db.Logger)
	return srv, store, &updated
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestSetSettingPersistsAndNotifies(t *testing.T) {
	srv, store, updated := newSettingsServer(t)

	rec := doRequest(srv, http.MethodPut, "/api/v1/settings/provider.opensubtitles.api_key", `{"value":"k1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := store.Namespace(context.Background(), "provider.opensubtitles.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api_key": "k1"}, got)
	assert.Equal(t, []string{"provider.opensubtitles.api_key"}, *updated)
}

func TestListSettingsFiltersByPrefix(t *testing.T) {
	srv, store, _ := newSettingsServer(t)
	require.NoError(t, store.Set(context.Background(), "backend.lingarr.url", "http://lingarr:9876"))
	require.NoError(t, store.Set(context.Background(), "wanted.max_attempts", "5"))

	rec := doRequest(srv, http.MethodGet, "/api/v1/settings?prefix=backend.", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lingarr.url")
	assert.NotContains(t, rec.Body.String(), "max_attempts")
}

func TestDeleteSettingNotifies(t *testing.T) {
	srv, store, updated := newSettingsServer(t)
	require.NoError(t, store.Set(context.Background(), "translation_backend", "lingarr"))

	rec := doRequest(srv, http.MethodDelete, "/api/v1/settings/translation_backend", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "", store.GetString(context.Background(), "translation_backend", ""))
	assert.Equal(t, []string{"translation_backend", "translation_backend"}, *updated)
}
