package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/testutil"
)

func insertWebhook(t *testing.T, db *testutil.TestDB, w Webhook) int64 {
	t.Helper()
	res, err := db.Conn.Exec(`
		INSERT INTO webhook_configs (name, url, secret, event_name, retries, timeout_seconds, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.Name, w.URL, w.Secret, w.EventName, w.Retries, w.TimeoutSeconds, w.Enabled)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestSign(t *testing.T) {
	// Fixed vector so signature compatibility never silently changes.
	got := Sign("topsecret", []byte(`{"a":1}`))
	assert.Equal(t, "sha256=bf1e6501b7fa928ec2391fea9dd90af3c9ad1b7b1ef6ff319c25940cec746bf8", got)
	assert.NotEqual(t, got, Sign("othersecret", []byte(`{"a":1}`)))
}

func TestStoreEnabledMatchesEventOrWildcard(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	insertWebhook(t, db, Webhook{Name: "downloads", URL: "http://a", EventName: "download_complete", Enabled: true})
	insertWebhook(t, db, Webhook{Name: "all", URL: "http://b", EventName: "*", Enabled: true})
	insertWebhook(t, db, Webhook{Name: "other", URL: "http://c", EventName: "translate_complete", Enabled: true})
	insertWebhook(t, db, Webhook{Name: "off", URL: "http://d", EventName: "download_complete", Enabled: false})

	hooks, err := store.Enabled(ctx, "download_complete")
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	names := []string{hooks[0].Name, hooks[1].Name}
	assert.Contains(t, names, "downloads")
	assert.Contains(t, names, "all")
}

func TestDispatchDeliversSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotSig atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig.Store(r.Header.Get("X-Sublarr-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := testutil.NewTestDB(t)
	insertWebhook(t, db, Webhook{Name: "hook", URL: srv.URL, Secret: "s3cret",
		EventName: events.EventDownloadComplete, Retries: 1, TimeoutSeconds: 5, Enabled: true})

	d := NewDispatcher(NewStore(db.Conn), db.Logger)
	d.Dispatch(events.EventDownloadComplete, events.Payload{"path": "/media/a.mkv", "language": "de"})

	var body struct {
		EventName string         `json:"event_name"`
		Version   int            `json:"version"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, events.EventDownloadComplete, body.EventName)
	assert.Equal(t, 1, body.Version)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, "/media/a.mkv", body.Data["path"])

	assert.Equal(t, Sign("s3cret", gotBody), gotSig.Load())
}

func TestDispatchIgnoresNonTriggerEvents(t *testing.T) {
	called := atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
	}))
	defer srv.Close()

	db := testutil.NewTestDB(t)
	insertWebhook(t, db, Webhook{Name: "hook", URL: srv.URL, EventName: "*", Retries: 1, TimeoutSeconds: 5, Enabled: true})

	d := NewDispatcher(NewStore(db.Conn), db.Logger)
	d.Dispatch(events.EventHookExecuted, events.Payload{"hook": "x"})
	assert.Equal(t, int64(0), called.Load())
}

func TestDeliverRetriesOn500(t *testing.T) {
	attempts := atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := testutil.NewTestDB(t)
	d := NewDispatcher(NewStore(db.Conn), db.Logger)

	err := d.deliver(context.Background(), Webhook{URL: srv.URL, Retries: 3, TimeoutSeconds: 5}, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestDeliverFailsFastOn4xx(t *testing.T) {
	attempts := atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db := testutil.NewTestDB(t)
	d := NewDispatcher(NewStore(db.Conn), db.Logger)

	err := d.deliver(context.Background(), Webhook{URL: srv.URL, Retries: 3, TimeoutSeconds: 5}, []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int64(1), attempts.Load())
}

func TestDispatchSkipsAfterRepeatedFailures(t *testing.T) {
	attempts := atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	db := testutil.NewTestDB(t)
	insertWebhook(t, db, Webhook{Name: "broken", URL: srv.URL,
		EventName: "*", Retries: 1, TimeoutSeconds: 5, Enabled: true})

	d := NewDispatcher(NewStore(db.Conn), db.Logger)
	for i := 0; i < 12; i++ {
		d.Dispatch(events.EventPipelineSkipped, events.Payload{"path": "/a", "reason": "test"})
	}

	// Delivery stops at the skip threshold.
	assert.Equal(t, int64(10), attempts.Load())
}

func TestRecordSuccessResetsFailureCount(t *testing.T) {
	db := testutil.NewTestDB(t)
	d := NewDispatcher(NewStore(db.Conn), db.Logger)

	for i := 0; i < 9; i++ {
		d.recordFailure(1)
	}
	assert.Equal(t, 9, d.failureCount(1))
	d.recordSuccess(1)
	assert.Equal(t, 0, d.failureCount(1))
}
