package wanted

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/mediamanager"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/translator"
)

type stubSeries struct {
	series   []mediamanager.Series
	episodes map[int64][]mediamanager.Episode
}

func (s *stubSeries) Series(ctx context.Context) ([]mediamanager.Series, error) {
	return s.series, nil
}

func (s *stubSeries) Episodes(ctx context.Context, seriesID int64) ([]mediamanager.Episode, error) {
	return s.episodes[seriesID], nil
}

type stubMovies struct {
	movies []mediamanager.Movie
}

func (s *stubMovies) Movies(ctx context.Context) ([]mediamanager.Movie, error) {
	return s.movies, nil
}

type stubProfiles struct {
	profiles []translator.Profile
}

func (s *stubProfiles) List(ctx context.Context) ([]translator.Profile, error) {
	return s.profiles, nil
}

// episodeWithFile builds an Episode through JSON so the anonymous
// episodeFile struct gets populated.
func episodeWithFile(id int64, season, num int, path string) mediamanager.Episode {
	var ep mediamanager.Episode
	raw := fmt.Sprintf(`{"id":%d,"seasonNumber":%d,"episodeNumber":%d,"hasFile":true,"episodeFile":{"path":%q}}`,
		id, season, num, path)
	if err := json.Unmarshal([]byte(raw), &ep); err != nil {
		panic(err)
	}
	return ep
}

func movieWithFile(id int64, title, path string) mediamanager.Movie {
	var m mediamanager.Movie
	raw := fmt.Sprintf(`{"id":%d,"title":%q,"hasFile":true,"movieFile":{"path":%q}}`, id, title, path)
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		panic(err)
	}
	return m
}

func newScannerFixture(t *testing.T, series SeriesSource, movies MovieSource, profiles []translator.Profile) (*Scanner, *Store) {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := NewStore(db.Conn)
	bus := events.NewBus(db.Logger)
	scanner := NewScanner(store, series, movies, &stubProfiles{profiles: profiles}, bus, db.Logger)
	return scanner, store
}

func deProfile() translator.Profile {
	return translator.Profile{Name: "German", SourceLanguage: "en", TargetLanguage: "de"}
}

func TestScanMaterialisesMissingEpisodes(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "Show.S01E01.mkv")

	series := &stubSeries{
		series: []mediamanager.Series{{ID: 1, Title: "Show"}},
		episodes: map[int64][]mediamanager.Episode{
			1: {episodeWithFile(10, 1, 1, ep)},
		},
	}
	scanner, store := newScannerFixture(t, series, nil, []translator.Profile{deProfile()})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Updated)

	items, err := store.ListByStatus(context.Background(), StatusWanted, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ep, items[0].FilePath)
	assert.Equal(t, "S01E01", items[0].SeasonEpisode)
	assert.Equal(t, "de", items[0].TargetLanguage)
}

func TestScanSkipsWhenTargetSubtitleExists(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "Show.S01E01.mkv")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Show.S01E01.de.srt"), []byte("1\n"), 0o644))

	series := &stubSeries{
		series: []mediamanager.Series{{ID: 1, Title: "Show"}},
		episodes: map[int64][]mediamanager.Episode{
			1: {episodeWithFile(10, 1, 1, ep)},
		},
	}
	scanner, store := newScannerFixture(t, series, nil, []translator.Profile{deProfile()})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)

	items, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScanRecordsAdjacentSourceSubtitle(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "Show.S01E01.mkv")
	source := filepath.Join(dir, "Show.S01E01.en.ass")
	require.NoError(t, os.WriteFile(source, []byte("[Script Info]\n"), 0o644))

	series := &stubSeries{
		series: []mediamanager.Series{{ID: 1, Title: "Show"}},
		episodes: map[int64][]mediamanager.Episode{
			1: {episodeWithFile(10, 1, 1, ep)},
		},
	}
	scanner, store := newScannerFixture(t, series, nil, []translator.Profile{deProfile()})

	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	items, err := store.ListByStatus(context.Background(), StatusWanted, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, source, items[0].ExistingSubPath)
}

func TestScanIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "Show.S01E01.mkv")

	series := &stubSeries{
		series: []mediamanager.Series{{ID: 1, Title: "Show"}},
		episodes: map[int64][]mediamanager.Episode{
			1: {episodeWithFile(10, 1, 1, ep)},
		},
	}
	scanner, store := newScannerFixture(t, series, nil, []translator.Profile{deProfile()})

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Updated)

	items, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestScanMovies(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "Film.2024.mkv")

	movies := &stubMovies{movies: []mediamanager.Movie{movieWithFile(7, "Film", movie)}}
	scanner, store := newScannerFixture(t, nil, movies, []translator.Profile{deProfile()})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	items, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeMovie, items[0].ItemType)
	assert.Equal(t, int64(7), items[0].MovieID)
}

func TestScanOneProfilePerLanguage(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "Show.S01E01.mkv")

	series := &stubSeries{
		series: []mediamanager.Series{{ID: 1, Title: "Show"}},
		episodes: map[int64][]mediamanager.Episode{
			1: {episodeWithFile(10, 1, 1, ep)},
		},
	}
	profiles := []translator.Profile{
		deProfile(),
		{Name: "French", SourceLanguage: "en", TargetLanguage: "fr"},
	}
	scanner, store := newScannerFixture(t, series, nil, profiles)

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	items, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestScanRejectsConcurrentRun(t *testing.T) {
	scanner, _ := newScannerFixture(t, nil, nil, []translator.Profile{deProfile()})

	scanner.scanning.Store(true)
	_, err := scanner.Scan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestScanWithoutProfilesIsNoop(t *testing.T) {
	scanner, _ := newScannerFixture(t, nil, nil, nil)

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}
