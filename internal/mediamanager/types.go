// Package mediamanager consumes the Sonarr and Radarr HTTP APIs
// read-only, plus the rescan command after a subtitle is written.
package mediamanager

// Series is one show from the series catalog.
type Series struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	TvdbID     int64  `json:"tvdbId"`
	ImdbID     string `json:"imdbId"`
	SeriesType string `json:"seriesType"` // standard, anime, daily
	Path       string `json:"path"`
}

// Episode is one episode with its on-disk file, if any.
type Episode struct {
	ID              int64  `json:"id"`
	SeriesID        int64  `json:"seriesId"`
	SeasonNumber    int    `json:"seasonNumber"`
	EpisodeNumber   int    `json:"episodeNumber"`
	AbsoluteEpisode int    `json:"absoluteEpisodeNumber"`
	Title           string `json:"title"`
	HasFile         bool   `json:"hasFile"`
	EpisodeFile     *struct {
		Path         string `json:"path"`
		Size         int64  `json:"size"`
		ReleaseGroup string `json:"releaseGroup"`
		Quality      *struct {
			Quality struct {
				Name       string `json:"name"`
				Source     string `json:"source"`
				Resolution int    `json:"resolution"`
			} `json:"quality"`
		} `json:"quality"`
	} `json:"episodeFile"`
}

// Movie is one movie from the movie catalog.
type Movie struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	ImdbID    string `json:"imdbId"`
	TmdbID    int64  `json:"tmdbId"`
	HasFile   bool   `json:"hasFile"`
	MovieFile *struct {
		Path         string `json:"path"`
		Size         int64  `json:"size"`
		ReleaseGroup string `json:"releaseGroup"`
		Quality      *struct {
			Quality struct {
				Name       string `json:"name"`
				Source     string `json:"source"`
				Resolution int    `json:"resolution"`
			} `json:"quality"`
		} `json:"quality"`
	} `json:"movieFile"`
}
