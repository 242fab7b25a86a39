package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/testutil"
)

func insertHook(t *testing.T, db *testutil.TestDB, h Hook) int64 {
	t.Helper()
	res, err := db.Conn.Exec(`
		INSERT INTO hook_configs (name, event_name, script_path, timeout_seconds, enabled)
		VALUES (?, ?, ?, ?, ?)`,
		h.Name, h.EventName, h.ScriptPath, h.TimeoutSeconds, h.Enabled)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func waitForLog(t *testing.T, store *Store) LogEntry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		logs, err := store.Logs(context.Background(), 1)
		require.NoError(t, err)
		if len(logs) > 0 {
			return logs[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("hook never executed")
	return LogEntry{}
}

func TestStoreEnabledMatchesEventOrWildcard(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	insertHook(t, db, Hook{Name: "on-download", EventName: "download_complete", ScriptPath: "/x", Enabled: true})
	insertHook(t, db, Hook{Name: "all", EventName: "*", ScriptPath: "/y", Enabled: true})
	insertHook(t, db, Hook{Name: "disabled", EventName: "download_complete", ScriptPath: "/z", Enabled: false})

	hooks, err := store.Enabled(ctx, "download_complete")
	require.NoError(t, err)
	assert.Len(t, hooks, 2)

	hooks, err = store.Enabled(ctx, "translate_complete")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "all", hooks[0].Name)
}

func TestEngineRunsScriptWithEnvironment(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	bus := events.NewBus(db.Logger)

	script := writeScript(t, `echo "event=$SUBLARR_EVENT path=$SUBLARR_PATH"`)
	insertHook(t, db, Hook{Name: "echoer", EventName: "*", ScriptPath: script, TimeoutSeconds: 10, Enabled: true})

	engine := NewEngine(store, bus, 1, db.Logger)
	engine.Dispatch(events.EventDownloadComplete, events.Payload{"path": "/media/a.mkv"})

	entry := waitForLog(t, store)
	assert.Equal(t, 0, entry.ExitCode)
	assert.Contains(t, entry.Stdout, "event=download_complete")
	assert.Contains(t, entry.Stdout, "path=/media/a.mkv")
}

func TestEngineRecordsNonZeroExit(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	bus := events.NewBus(db.Logger)

	script := writeScript(t, `echo "broken" >&2; exit 3`)
	insertHook(t, db, Hook{Name: "failing", EventName: "*", ScriptPath: script, TimeoutSeconds: 10, Enabled: true})

	engine := NewEngine(store, bus, 1, db.Logger)
	engine.Dispatch(events.EventPipelineFailed, events.Payload{"path": "/a", "reason": "x", "error": "y"})

	entry := waitForLog(t, store)
	assert.Equal(t, 3, entry.ExitCode)
	assert.Contains(t, entry.Stderr, "broken")
}

func TestEngineIgnoresNonTriggerEvents(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	bus := events.NewBus(db.Logger)

	script := writeScript(t, `echo ran`)
	insertHook(t, db, Hook{Name: "never", EventName: "*", ScriptPath: script, TimeoutSeconds: 10, Enabled: true})

	engine := NewEngine(store, bus, 1, db.Logger)
	engine.Dispatch(events.EventHookExecuted, events.Payload{"hook": "x"})

	time.Sleep(200 * time.Millisecond)
	logs, err := store.Logs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestEnvironmentIsRestricted(t *testing.T) {
	db := testutil.NewTestDB(t)
	engine := NewEngine(NewStore(db.Conn), events.NewBus(db.Logger), 1, db.Logger)

	env := engine.environment("/tmp/home", dispatch{
		name:    "download_complete",
		payload: events.Payload{"path": "/media/a.mkv", "score": 359},
	})

	byKey := map[string]string{}
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		byKey[parts[0]] = parts[1]
	}

	assert.Equal(t, "download_complete", byKey["SUBLARR_EVENT"])
	assert.Equal(t, "/media/a.mkv", byKey["SUBLARR_PATH"])
	assert.Equal(t, "359", byKey["SUBLARR_SCORE"])
	assert.Equal(t, "/tmp/home", byKey["HOME"])
	assert.Contains(t, byKey["SUBLARR_EVENT_DATA"], `"path"`)

	// Nothing beyond PATH, HOME, and the event variables leaks in.
	for key := range byKey {
		ok := key == "PATH" || key == "HOME" || strings.HasPrefix(key, "SUBLARR_")
		assert.True(t, ok, key)
	}
}

func TestCap4k(t *testing.T) {
	long := strings.Repeat("a", outputCap+100)
	assert.Len(t, cap4k(long), outputCap)
	assert.Equal(t, "short", cap4k("short"))
}

func TestLimitWriterCapsOutput(t *testing.T) {
	var b strings.Builder
	w := limitWriter{&b}

	n, err := w.Write([]byte(strings.Repeat("x", outputCap)))
	require.NoError(t, err)
	assert.Equal(t, outputCap, n)

	// Writes past the cap report success but are discarded.
	n, err = w.Write([]byte("overflow"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, outputCap, b.Len())
}
