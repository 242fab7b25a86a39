package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEpisodeName(t *testing.T) {
	tests := []struct {
		name    string
		season  int
		episode int
		title   string
		ok      bool
	}{
		{"Show.Name.S01E02.1080p.WEB-DL.x264-GRP", 1, 2, "Show Name", true},
		{"show name s03e12 720p", 3, 12, "show name", true},
		{"Some_Show-S10E100-HDTV", 10, 100, "Some Show", true},
		{"Movie.Title.2024.1080p.BluRay", 0, 0, "", false},
		{"S01E02.no.title", 0, 0, "", false},
		{"", 0, 0, "", false},
	}
	for _, tt := range tests {
		season, episode, title, ok := parseEpisodeName(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if !tt.ok {
			continue
		}
		assert.Equal(t, tt.season, season, tt.name)
		assert.Equal(t, tt.episode, episode, tt.name)
		assert.Equal(t, tt.title, title, tt.name)
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Movie Title", cleanTitle("Movie.Title.2024.1080p.BluRay.x264-GRP"))
	assert.Equal(t, "Another Film", cleanTitle("Another_Film.WEBRip"))
	assert.Equal(t, "Plain Name", cleanTitle("Plain Name"))
	assert.Equal(t, "Film", cleanTitle("Film.2160p.x265.REMUX"))
}
