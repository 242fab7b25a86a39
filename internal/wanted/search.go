package wanted

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/anidb"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/mediamanager"
	"github.com/sublarr/sublarr/internal/mediaserver"
	"github.com/sublarr/sublarr/internal/provider"
	provmanager "github.com/sublarr/sublarr/internal/provider/manager"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translator"
)

// EpisodeMetadata is the slice of the series catalog the search loop
// needs.
type EpisodeMetadata interface {
	SeriesByID(ctx context.Context, id int64) (*mediamanager.Series, error)
	Episodes(ctx context.Context, seriesID int64) ([]mediamanager.Episode, error)
	RescanSeries(ctx context.Context, seriesID int64) error
}

// MovieMetadata is the slice of the movie catalog the search loop needs.
type MovieMetadata interface {
	MovieByID(ctx context.Context, id int64) (*mediamanager.Movie, error)
	RescanMovie(ctx context.Context, movieID int64) error
}

// Searcher drives wanted items through the provider pipeline, one item
// at a time.
type Searcher struct {
	store       *Store
	providers   *provmanager.Manager
	history     *history.Service
	stats       *stats.Service
	series      EpisodeMetadata
	movies      MovieMetadata
	anidb       *anidb.Service
	mediaserver *mediaserver.Manager
	bus         *events.Bus
	logger      zerolog.Logger

	maxAttempts    int
	maxItemsPerRun int
}

// NewSearcher creates a search loop. series, movies, anidb, and
// mediaserver may be nil when not configured.
func NewSearcher(
	store *Store,
	providers *provmanager.Manager,
	historySvc *history.Service,
	statsSvc *stats.Service,
	series EpisodeMetadata,
	movies MovieMetadata,
	anidbSvc *anidb.Service,
	msm *mediaserver.Manager,
	bus *events.Bus,
	maxAttempts, maxItemsPerRun int,
	logger zerolog.Logger,
) *Searcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if maxItemsPerRun <= 0 {
		maxItemsPerRun = 50
	}
	return &Searcher{
		store:          store,
		providers:      providers,
		history:        historySvc,
		stats:          statsSvc,
		series:         series,
		movies:         movies,
		anidb:          anidbSvc,
		mediaserver:    msm,
		bus:            bus,
		maxAttempts:    maxAttempts,
		maxItemsPerRun: maxItemsPerRun,
		logger:         logger.With().Str("component", "wanted-search").Logger(),
	}
}

// SearchBatch processes up to the configured number of wanted items,
// strictly sequentially.
func (s *Searcher) SearchBatch(ctx context.Context) (int, error) {
	items, err := s.store.ListByStatus(ctx, StatusWanted, s.maxItemsPerRun)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	for i := range items {
		if err := ctx.Err(); err != nil {
			return succeeded, err
		}
		if err := s.SearchItem(ctx, &items[i]); err != nil {
			s.logger.Debug().Err(err).Str("path", items[i].FilePath).Msg("Wanted search failed")
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

// SearchItem runs one provider search for one item, writes the best
// result, and transitions the item.
func (s *Searcher) SearchItem(ctx context.Context, item *Item) error {
	query, err := s.buildQuery(ctx, item)
	if err != nil {
		s.store.RecordAttempt(ctx, item.ID, err.Error(), s.maxAttempts)
		return err
	}

	s.bus.Emit(events.EventSearchStarted, map[string]any{
		"path":      item.FilePath,
		"language":  item.TargetLanguage,
		"item_type": item.ItemType,
	})
	start := time.Now()

	results := s.providers.Search(ctx, query, "")
	s.bus.Emit(events.EventSearchCompleted, map[string]any{
		"path":       item.FilePath,
		"language":   item.TargetLanguage,
		"results":    len(results),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	best := s.providers.DownloadBest(ctx, query, "")
	if best == nil {
		searchErr := "no downloadable results"
		if len(results) == 0 {
			searchErr = "no results"
		}
		s.store.RecordAttempt(ctx, item.ID, searchErr, s.maxAttempts)
		s.stats.RecordDaily(ctx, stats.CounterFailures)
		return fmt.Errorf("%s for %s (%s)", searchErr, item.FilePath, item.TargetLanguage)
	}

	if !translator.Accept(best.Content, best.Format) {
		reason := "downloaded subtitle failed validation"
		s.providers.Blacklist(ctx, best.ProviderName, best.SubtitleID, reason)
		s.store.RecordAttempt(ctx, item.ID, reason, s.maxAttempts)
		s.stats.RecordDaily(ctx, stats.CounterFailures)
		return fmt.Errorf("%s: %s from %s", reason, item.FilePath, best.ProviderName)
	}

	outputPath := subtitles.SubtitlePath(item.FilePath, item.TargetLanguage, formatExtension(best.Format))
	if err := subtitles.WriteAtomic(outputPath, best.Content); err != nil {
		s.store.RecordAttempt(ctx, item.ID, err.Error(), s.maxAttempts)
		return err
	}

	if err := s.store.MarkCompleted(ctx, item.ID); err != nil {
		return err
	}
	s.history.RecordDownload(ctx, best, item.FilePath)
	s.stats.RecordDaily(ctx, stats.CounterDownloads)

	s.bus.Emit(events.EventDownloadComplete, map[string]any{
		"path":        item.FilePath,
		"language":    item.TargetLanguage,
		"provider":    best.ProviderName,
		"subtitle_id": best.SubtitleID,
		"score":       best.Score,
		"format":      string(best.Format),
	})

	s.refresh(ctx, item)
	s.logger.Info().Str("path", outputPath).Str("provider", best.ProviderName).
		Int("score", best.Score).Msg("Wanted subtitle downloaded")
	return nil
}

// refresh notifies media servers and the owning catalog.
func (s *Searcher) refresh(ctx context.Context, item *Item) {
	if s.mediaserver != nil {
		s.mediaserver.RefreshAll(ctx, item.FilePath)
	}
	switch {
	case item.ItemType == TypeEpisode && s.series != nil && item.SeriesID > 0:
		if err := s.series.RescanSeries(ctx, item.SeriesID); err != nil {
			s.logger.Warn().Err(err).Int64("series_id", item.SeriesID).Msg("Series rescan failed")
		}
	case item.ItemType == TypeMovie && s.movies != nil && item.MovieID > 0:
		if err := s.movies.RescanMovie(ctx, item.MovieID); err != nil {
			s.logger.Warn().Err(err).Int64("movie_id", item.MovieID).Msg("Movie rescan failed")
		}
	}
}

// buildQuery assembles a VideoQuery from the item plus catalog
// metadata. Metadata failures degrade to a filename-derived query
// rather than blocking the search.
func (s *Searcher) buildQuery(ctx context.Context, item *Item) (*provider.VideoQuery, error) {
	query := &provider.VideoQuery{
		FilePath:  item.FilePath,
		Languages: []string{item.TargetLanguage},
	}
	if hash, size, err := provider.ComputeFileHash(item.FilePath); err == nil {
		query.FileHash = hash
		query.FileSize = size
	}

	switch item.ItemType {
	case TypeEpisode:
		if err := s.fillEpisode(ctx, item, query); err != nil {
			return nil, err
		}
	case TypeMovie:
		if err := s.fillMovie(ctx, item, query); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown item type %q", item.ItemType)
	}

	if err := query.Validate(); err != nil {
		return nil, err
	}
	return query, nil
}

func (s *Searcher) fillEpisode(ctx context.Context, item *Item, query *provider.VideoQuery) error {
	query.SeriesTitle = item.Title
	if _, err := fmt.Sscanf(item.SeasonEpisode, "S%02dE%02d", &query.Season, &query.Episode); err != nil {
		return fmt.Errorf("malformed season/episode %q", item.SeasonEpisode)
	}

	if s.series == nil || item.SeriesID == 0 {
		return nil
	}
	show, err := s.series.SeriesByID(ctx, item.SeriesID)
	if err != nil {
		s.logger.Debug().Err(err).Int64("series_id", item.SeriesID).Msg("Series metadata unavailable")
		return nil
	}
	query.SeriesTitle = show.Title
	query.Year = show.Year
	query.TvdbID = int(show.TvdbID)
	query.ImdbID = show.ImdbID

	episodes, err := s.series.Episodes(ctx, item.SeriesID)
	if err == nil {
		for _, ep := range episodes {
			if ep.ID != item.EpisodeID {
				continue
			}
			query.EpisodeTitle = ep.Title
			query.AbsoluteEpisode = ep.AbsoluteEpisode
			if ep.EpisodeFile != nil {
				query.ReleaseGroup = ep.EpisodeFile.ReleaseGroup
				if q := ep.EpisodeFile.Quality; q != nil {
					query.Source = q.Quality.Source
					query.Resolution = fmt.Sprintf("%dp", q.Quality.Resolution)
				}
			}
			break
		}
	}

	// Anime with absolute ordering: the AniDB mapping wins over the
	// catalog's own numbering.
	if strings.EqualFold(show.SeriesType, "anime") && s.anidb != nil && show.TvdbID > 0 {
		if abs, err := s.anidb.AbsoluteEpisode(ctx, show.TvdbID, query.Season, query.Episode); err == nil && abs > 0 {
			query.AbsoluteEpisode = abs
		}
	}
	return nil
}

func (s *Searcher) fillMovie(ctx context.Context, item *Item, query *provider.VideoQuery) error {
	query.Title = item.Title

	if s.movies == nil || item.MovieID == 0 {
		return nil
	}
	movie, err := s.movies.MovieByID(ctx, item.MovieID)
	if err != nil {
		s.logger.Debug().Err(err).Int64("movie_id", item.MovieID).Msg("Movie metadata unavailable")
		return nil
	}
	query.Title = movie.Title
	query.Year = movie.Year
	query.ImdbID = movie.ImdbID
	query.TmdbID = int(movie.TmdbID)
	if movie.MovieFile != nil {
		query.ReleaseGroup = movie.MovieFile.ReleaseGroup
		if q := movie.MovieFile.Quality; q != nil {
			query.Source = q.Quality.Source
			query.Resolution = fmt.Sprintf("%dp", q.Quality.Resolution)
		}
	}
	return nil
}

func formatExtension(f provider.Format) string {
	switch f {
	case provider.FormatASS:
		return ".ass"
	case provider.FormatSSA:
		return ".ssa"
	case provider.FormatVTT:
		return ".vtt"
	default:
		return ".srt"
	}
}
