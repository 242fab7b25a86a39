package wanted

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/blacklist"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/provider"
	provmanager "github.com/sublarr/sublarr/internal/provider/manager"
	"github.com/sublarr/sublarr/internal/provider/mock"
	"github.com/sublarr/sublarr/internal/providercache"
	"github.com/sublarr/sublarr/internal/scoring"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/testutil"
)

type searchFixture struct {
	searcher *Searcher
	store    *Store
	mock     *mock.Provider
	history  *history.Service
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	db := testutil.NewTestDB(t)

	p := mock.New("alpha")
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("alpha", func(settings map[string]string) (provider.Provider, error) {
		return p, nil
	}))

	providers := provmanager.New(registry,
		provmanager.Settings{Enabled: []string{"alpha"}, Priority: []string{"alpha"}},
		nil,
		providercache.NewStore(db.Conn, time.Hour, db.Logger),
		blacklist.NewStore(db.Conn, db.Logger),
		scoring.NewService(db.Conn, db.Logger),
		stats.NewService(db.Conn, db.Logger),
		db.Logger)

	store := NewStore(db.Conn)
	historySvc := history.NewService(db.Conn, db.Logger)
	searcher := NewSearcher(store, providers, historySvc,
		stats.NewService(db.Conn, db.Logger),
		nil, nil, nil, nil,
		events.NewBus(db.Logger), 3, 10, db.Logger)

	return &searchFixture{searcher: searcher, store: store, mock: p, history: historySvc}
}

func wantedEpisode(t *testing.T, f *searchFixture, path string) *Item {
	t.Helper()
	item := newItem(path)
	_, err := f.store.Upsert(context.Background(), item)
	require.NoError(t, err)
	return item
}

func TestSearchItemDownloadsAndCompletes(t *testing.T) {
	f := newSearchFixture(t)
	dir := t.TempDir()
	media := filepath.Join(dir, "Show.S01E02.mkv")

	f.mock.Results = []*provider.SubtitleResult{
		result(t, "sub1", "de", provider.FormatSRT, provider.MatchSeries, provider.MatchSeason, provider.MatchEpisode),
	}
	f.mock.Content["sub1"] = []byte("1\n00:00:01,000 --> 00:00:02,000\nHallo.\n")

	item := wantedEpisode(t, f, media)
	require.NoError(t, f.searcher.SearchItem(context.Background(), item))

	written, err := os.ReadFile(filepath.Join(dir, "Show.S01E02.de.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "Hallo.")

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSearchItemRecordsAttemptOnNoResults(t *testing.T) {
	f := newSearchFixture(t)
	item := wantedEpisode(t, f, filepath.Join(t.TempDir(), "Show.S01E02.mkv"))

	err := f.searcher.SearchItem(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SearchAttempts)
	assert.Equal(t, StatusWanted, got.Status)
}

func TestSearchItemFailsAfterMaxAttempts(t *testing.T) {
	f := newSearchFixture(t)
	item := wantedEpisode(t, f, filepath.Join(t.TempDir(), "Show.S01E02.mkv"))

	for i := 0; i < 3; i++ {
		assert.Error(t, f.searcher.SearchItem(context.Background(), item))
	}

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestSearchItemRejectsMalformedSeasonEpisode(t *testing.T) {
	f := newSearchFixture(t)
	item := newItem(filepath.Join(t.TempDir(), "Show.mkv"))
	item.SeasonEpisode = "garbage"
	_, err := f.store.Upsert(context.Background(), item)
	require.NoError(t, err)

	err = f.searcher.SearchItem(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed season/episode")
}

func TestSearchItemPicksBestFormatExtension(t *testing.T) {
	f := newSearchFixture(t)
	dir := t.TempDir()
	media := filepath.Join(dir, "Show.S01E02.mkv")

	f.mock.Results = []*provider.SubtitleResult{
		result(t, "styled", "de", provider.FormatASS, provider.MatchSeries, provider.MatchSeason, provider.MatchEpisode),
	}
	f.mock.Content["styled"] = []byte("[Script Info]\nTitle: x\n\n[Events]\n" +
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n" +
		"Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,Hallo.\n")

	item := wantedEpisode(t, f, media)
	require.NoError(t, f.searcher.SearchItem(context.Background(), item))

	_, err := os.Stat(filepath.Join(dir, "Show.S01E02.de.ass"))
	assert.NoError(t, err)
}

func TestSearchItemRejectsCorruptDownload(t *testing.T) {
	f := newSearchFixture(t)
	dir := t.TempDir()
	media := filepath.Join(dir, "Show.S01E02.mkv")

	f.mock.Results = []*provider.SubtitleResult{
		result(t, "broken", "de", provider.FormatSRT, provider.MatchSeries, provider.MatchSeason, provider.MatchEpisode),
	}
	f.mock.Content["broken"] = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0xde, 0xad}

	item := wantedEpisode(t, f, media)
	err := f.searcher.SearchItem(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")

	// Nothing lands on disk and the item stays wanted.
	_, statErr := os.Stat(filepath.Join(dir, "Show.S01E02.de.srt"))
	assert.True(t, os.IsNotExist(statErr))
	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWanted, got.Status)
	assert.Equal(t, 1, got.SearchAttempts)

	// The bad result is blacklisted, so the next pass skips it instead
	// of re-downloading.
	err = f.searcher.SearchItem(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no downloadable results")
}

func TestSearchBatchProcessesWantedItems(t *testing.T) {
	f := newSearchFixture(t)
	dir := t.TempDir()

	f.mock.Results = []*provider.SubtitleResult{
		result(t, "sub1", "de", provider.FormatSRT, provider.MatchSeries, provider.MatchSeason, provider.MatchEpisode),
	}
	f.mock.Content["sub1"] = []byte("1\n00:00:01,000 --> 00:00:02,000\nHallo.\n")

	wantedEpisode(t, f, filepath.Join(dir, "Show.S01E01.mkv"))
	wantedEpisode(t, f, filepath.Join(dir, "Show.S01E02.mkv"))

	done, err := f.searcher.SearchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	items, err := f.store.ListByStatus(context.Background(), StatusWanted, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func result(t *testing.T, id, lang string, format provider.Format, matches ...string) *provider.SubtitleResult {
	t.Helper()
	r := &provider.SubtitleResult{SubtitleID: id, Language: lang, Format: format}
	for _, m := range matches {
		r.AddMatch(m)
	}
	return r
}
