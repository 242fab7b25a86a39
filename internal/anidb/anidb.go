// Package anidb maintains the TVDB-to-AniDB episode mapping used to
// rewrite absolute episode numbers before anime providers are queried.
package anidb

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/provider"
)

// DefaultMappingURL is the community anime-lists XML export.
const DefaultMappingURL = "https://raw.githubusercontent.com/Anime-Lists/anime-lists/master/anime-list.xml"

// Service downloads, parses, and serves episode mappings.
type Service struct {
	db      *sql.DB
	session *provider.Session
	url     string
	logger  zerolog.Logger
}

// NewService creates the mapping service.
func NewService(db *sql.DB, url string, logger zerolog.Logger) *Service {
	if url == "" {
		url = DefaultMappingURL
	}
	session := provider.NewSession(provider.SessionConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}, logger)
	return &Service{
		db:      db,
		session: session,
		url:     url,
		logger:  logger.With().Str("component", "anidb").Logger(),
	}
}

// animeList mirrors the anime-lists XML layout. Only the pieces needed
// for episode offsets are decoded.
type animeList struct {
	Anime []struct {
		AnidbID       string `xml:"anidbid,attr"`
		TvdbID        string `xml:"tvdbid,attr"`
		DefaultSeason string `xml:"defaulttvdbseason,attr"`
		EpisodeOffset string `xml:"episodeoffset,attr"`
		MappingList   struct {
			Mapping []struct {
				AnidbSeason string `xml:"anidbseason,attr"`
				TvdbSeason  string `xml:"tvdbseason,attr"`
				Offset      string `xml:"offset,attr"`
				Value       string `xml:",chardata"`
			} `xml:"mapping"`
		} `xml:"mapping-list"`
	} `xml:"anime"`
}

// Refresh downloads the XML file and replaces the mapping table.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	body, _, err := s.session.Get(ctx, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to download mapping list: %w", err)
	}

	var list animeList
	if err := xml.Unmarshal(body, &list); err != nil {
		return 0, fmt.Errorf("failed to parse mapping list: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO anidb_mappings (tvdb_id, season, tvdb_episode, anidb_episode)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tvdb_id, season, tvdb_episode) DO UPDATE SET anidb_episode = excluded.anidb_episode`)
	if err != nil {
		return 0, err
	}
	defer upsert.Close()

	count := 0
	for _, anime := range list.Anime {
		tvdbID, err := strconv.ParseInt(anime.TvdbID, 10, 64)
		if err != nil || tvdbID <= 0 {
			continue
		}
		season, err := strconv.Atoi(anime.DefaultSeason)
		if err != nil || season <= 0 {
			continue
		}
		offset, _ := strconv.Atoi(anime.EpisodeOffset)

		// Explicit per-episode mappings take precedence; the offset
		// covers the common contiguous case.
		explicit := make(map[int]int)
		for _, m := range anime.MappingList.Mapping {
			if m.TvdbSeason != anime.DefaultSeason {
				continue
			}
			for tvdbEp, anidbEp := range parseMappingPairs(m.Value) {
				explicit[tvdbEp] = anidbEp
			}
		}

		for tvdbEp, anidbEp := range explicit {
			if _, err := upsert.ExecContext(ctx, tvdbID, season, tvdbEp, anidbEp); err != nil {
				return count, err
			}
			count++
		}
		if offset != 0 && len(explicit) == 0 {
			// Store the offset form as episode 1..100 rows; lookups
			// outside that range are uncommon for a single season.
			for ep := 1; ep <= 100; ep++ {
				if _, err := upsert.ExecContext(ctx, tvdbID, season, ep+offset, ep); err != nil {
					return count, err
				}
				count++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return count, err
	}
	s.logger.Info().Int("mappings", count).Msg("AniDB mapping table refreshed")
	return count, nil
}

// parseMappingPairs decodes the ";tvdb-anidb;tvdb-anidb;" pair syntax.
func parseMappingPairs(value string) map[int]int {
	out := make(map[int]int)
	for _, pair := range strings.Split(value, ";") {
		parts := strings.SplitN(pair, "-", 2)
		if len(parts) != 2 {
			continue
		}
		anidbEp, err1 := strconv.Atoi(parts[0])
		tvdbEp, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out[tvdbEp] = anidbEp
	}
	return out
}

// AbsoluteEpisode looks up the AniDB absolute episode for a TVDB
// (series, season, episode) triple. Returns 0 when unmapped.
func (s *Service) AbsoluteEpisode(ctx context.Context, tvdbID int64, season, episode int) (int, error) {
	var abs int
	err := s.db.QueryRowContext(ctx,
		`SELECT anidb_episode FROM anidb_mappings WHERE tvdb_id = ? AND season = ? AND tvdb_episode = ?`,
		tvdbID, season, episode).Scan(&abs)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return abs, nil
}
