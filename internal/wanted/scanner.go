package wanted

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/mediamanager"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translator"
)

var subtitleExtensions = []string{".ass", ".ssa", ".srt", ".vtt"}

// SeriesSource lists the series catalog.
type SeriesSource interface {
	Series(ctx context.Context) ([]mediamanager.Series, error)
	Episodes(ctx context.Context, seriesID int64) ([]mediamanager.Episode, error)
}

// MovieSource lists the movie catalog.
type MovieSource interface {
	Movies(ctx context.Context) ([]mediamanager.Movie, error)
}

// ProfileSource lists the configured language profiles.
type ProfileSource interface {
	List(ctx context.Context) ([]translator.Profile, error)
}

// ScanResult summarises one scan.
type ScanResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
}

// Scanner enumerates the library and materialises wanted items for
// files missing a target-language subtitle. At most one scan runs at a
// time.
type Scanner struct {
	store    *Store
	series   SeriesSource
	movies   MovieSource
	profiles ProfileSource
	bus      *events.Bus
	logger   zerolog.Logger

	scanning atomic.Bool
}

// NewScanner creates a scanner. series and movies may be nil when the
// corresponding catalog is not configured.
func NewScanner(store *Store, series SeriesSource, movies MovieSource, profiles ProfileSource, bus *events.Bus, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:    store,
		series:   series,
		movies:   movies,
		profiles: profiles,
		bus:      bus,
		logger:   logger.With().Str("component", "wanted-scanner").Logger(),
	}
}

// Scan runs one full library scan. A second concurrent call fails fast.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("a scan is already running")
	}
	defer s.scanning.Store(false)

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load language profiles: %w", err)
	}
	if len(profiles) == 0 {
		s.logger.Warn().Msg("No language profiles configured; nothing to scan for")
		return &ScanResult{}, nil
	}

	result := &ScanResult{}
	if s.series != nil {
		if err := s.scanSeries(ctx, profiles, result); err != nil {
			return result, err
		}
	}
	if s.movies != nil {
		if err := s.scanMovies(ctx, profiles, result); err != nil {
			return result, err
		}
	}

	s.bus.Emit(events.EventWantedScanDone, map[string]any{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"total":    result.Total,
	})
	s.logger.Info().Int("inserted", result.Inserted).Int("updated", result.Updated).
		Int("total", result.Total).Msg("Wanted scan finished")
	return result, nil
}

func (s *Scanner) scanSeries(ctx context.Context, profiles []translator.Profile, result *ScanResult) error {
	series, err := s.series.Series(ctx)
	if err != nil {
		return fmt.Errorf("failed to list series: %w", err)
	}

	for _, show := range series {
		episodes, err := s.series.Episodes(ctx, show.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("series", show.Title).Msg("Skipping series: episode list failed")
			continue
		}
		for _, ep := range episodes {
			if !ep.HasFile || ep.EpisodeFile == nil || ep.EpisodeFile.Path == "" {
				continue
			}
			for _, profile := range profiles {
				item := &Item{
					ItemType:       TypeEpisode,
					SeriesID:       show.ID,
					EpisodeID:      ep.ID,
					Title:          show.Title,
					SeasonEpisode:  fmt.Sprintf("S%02dE%02d", ep.SeasonNumber, ep.EpisodeNumber),
					FilePath:       ep.EpisodeFile.Path,
					TargetLanguage: profile.TargetLanguage,
					SubtitleType:   "full",
				}
				s.consider(ctx, item, profile, result)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (s *Scanner) scanMovies(ctx context.Context, profiles []translator.Profile, result *ScanResult) error {
	movies, err := s.movies.Movies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list movies: %w", err)
	}

	for _, movie := range movies {
		if !movie.HasFile || movie.MovieFile == nil || movie.MovieFile.Path == "" {
			continue
		}
		for _, profile := range profiles {
			item := &Item{
				ItemType:       TypeMovie,
				MovieID:        movie.ID,
				Title:          movie.Title,
				FilePath:       movie.MovieFile.Path,
				TargetLanguage: profile.TargetLanguage,
				SubtitleType:   "full",
			}
			s.consider(ctx, item, profile, result)
		}
	}
	return nil
}

// consider upserts a wanted item when the file is missing a
// target-language subtitle. An adjacent source-language subtitle is
// recorded so the search loop can prefer the translate path.
func (s *Scanner) consider(ctx context.Context, item *Item, profile translator.Profile, result *ScanResult) {
	if _, found := subtitles.FindAdjacent(item.FilePath, profile.TargetLanguage, subtitleExtensions, fileExists); found {
		return
	}
	if existing, found := subtitles.FindAdjacent(item.FilePath, profile.SourceLanguage, subtitleExtensions, fileExists); found {
		item.ExistingSubPath = existing
	}
	item.MissingLanguages = []string{profile.TargetLanguage}

	inserted, err := s.store.Upsert(ctx, item)
	if err != nil {
		s.logger.Error().Err(err).Str("path", item.FilePath).Msg("Failed to upsert wanted item")
		return
	}
	result.Total++
	if inserted {
		result.Inserted++
	} else {
		result.Updated++
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
