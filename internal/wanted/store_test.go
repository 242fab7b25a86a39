package wanted

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newItem(path string) *Item {
	return &Item{
		ItemType:         TypeEpisode,
		SeriesID:         12,
		EpisodeID:        340,
		Title:            "Show",
		SeasonEpisode:    "S01E02",
		FilePath:         path,
		MissingLanguages: []string{"de"},
		TargetLanguage:   "de",
		SubtitleType:     "full",
	}
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	item := newItem("/media/a.mkv")
	inserted, err := store.Upsert(ctx, item)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotZero(t, item.ID)

	// Same key again refreshes metadata but keeps the row.
	again := newItem("/media/a.mkv")
	again.Title = "Show (renamed)"
	inserted, err = store.Upsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, item.ID, again.ID)

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Show (renamed)", got.Title)
	assert.Equal(t, StatusWanted, got.Status)
}

func TestUpsertKeepsSearchProgress(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	item := newItem("/media/a.mkv")
	_, err := store.Upsert(ctx, item)
	require.NoError(t, err)
	require.NoError(t, store.RecordAttempt(ctx, item.ID, "no results", 5))

	_, err = store.Upsert(ctx, newItem("/media/a.mkv"))
	require.NoError(t, err)

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SearchAttempts)
	assert.Equal(t, "no results", got.LastError)
}

func TestUpsertDistinctLanguagesAreSeparateRows(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	de := newItem("/media/a.mkv")
	_, err := store.Upsert(ctx, de)
	require.NoError(t, err)

	fr := newItem("/media/a.mkv")
	fr.TargetLanguage = "fr"
	fr.MissingLanguages = []string{"fr"}
	inserted, err := store.Upsert(ctx, fr)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, de.ID, fr.ID)
}

func TestRecordAttemptFailsAtMaxAttempts(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	item := newItem("/media/a.mkv")
	_, err := store.Upsert(ctx, item)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.RecordAttempt(ctx, item.ID, "no results", 3))
		got, err := store.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusWanted, got.Status, "attempt %d", i+1)
	}

	require.NoError(t, store.RecordAttempt(ctx, item.ID, "no results", 3))
	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, got.SearchAttempts)
	require.NotNil(t, got.LastSearchAt)
}

func TestMarkCompletedClearsError(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	item := newItem("/media/a.mkv")
	_, err := store.Upsert(ctx, item)
	require.NoError(t, err)
	require.NoError(t, store.RecordAttempt(ctx, item.ID, "transient", 5))
	require.NoError(t, store.MarkCompleted(ctx, item.ID))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.LastError)
}

func TestListByStatusOldestSearchFirst(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	searched := newItem("/media/searched.mkv")
	_, err := store.Upsert(ctx, searched)
	require.NoError(t, err)
	require.NoError(t, store.RecordAttempt(ctx, searched.ID, "no results", 5))

	never := newItem("/media/never.mkv")
	_, err = store.Upsert(ctx, never)
	require.NoError(t, err)

	done := newItem("/media/done.mkv")
	_, err = store.Upsert(ctx, done)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, done.ID))

	items, err := store.ListByStatus(ctx, StatusWanted, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Never-searched items come before already-attempted ones.
	assert.Equal(t, "/media/never.mkv", items[0].FilePath)
	assert.Equal(t, "/media/searched.mkv", items[1].FilePath)
}

func TestSetStatusAndDelete(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	ctx := context.Background()

	item := newItem("/media/a.mkv")
	_, err := store.Upsert(ctx, item)
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, item.ID, StatusIgnored))
	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, got.Status)

	require.NoError(t, store.Delete(ctx, item.ID))
	_, err = store.Get(ctx, item.ID)
	assert.Error(t, err)
}
