package subtitles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageSet(t *testing.T) {
	assert.Equal(t, []string{"de", "deu", "ger", "german"}, LanguageSet("de"))
	assert.Equal(t, []string{"de", "deu", "ger", "german"}, LanguageSet("DE"))
	assert.Equal(t, []string{"xx"}, LanguageSet("xx"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "de", Normalize("ger"))
	assert.Equal(t, "de", Normalize(" German "))
	assert.Equal(t, "en", Normalize("en-US"))
	assert.Equal(t, "pt", Normalize("pt-BR"))
	assert.Equal(t, "ja", Normalize("jpn"))
	assert.Equal(t, "xx", Normalize("xx"))
	assert.Equal(t, "", Normalize(""))
}

func TestMatchesLanguage(t *testing.T) {
	assert.True(t, MatchesLanguage("ger", "de"))
	assert.True(t, MatchesLanguage(" German ", "de"))
	assert.True(t, MatchesLanguage("jpn", "ja"))
	assert.True(t, MatchesLanguage("en-US", "en"))
	assert.False(t, MatchesLanguage("eng", "de"))
	assert.False(t, MatchesLanguage("", "de"))
}

func TestSubtitlePath(t *testing.T) {
	assert.Equal(t, "/media/show/ep01.de.ass", SubtitlePath("/media/show/ep01.mkv", "de", ".ass"))
	assert.Equal(t, "/media/show/ep01.de.srt", SubtitlePath("/media/show/ep01.mkv", "de", "srt"))
}

func TestFindAdjacent(t *testing.T) {
	existing := map[string]bool{
		"/media/ep01.ger.srt": true,
	}
	exists := func(p string) bool { return existing[p] }

	path, ok := FindAdjacent("/media/ep01.mkv", "de", []string{".ass", ".srt"}, exists)
	assert.True(t, ok)
	assert.Equal(t, "/media/ep01.ger.srt", path)

	_, ok = FindAdjacent("/media/ep01.mkv", "fr", []string{".ass", ".srt"}, exists)
	assert.False(t, ok)
}
