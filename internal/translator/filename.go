package translator

import (
	"regexp"
	"strconv"
	"strings"
)

var episodeNameRe = regexp.MustCompile(`(?i)^(.*?)[. _-]+S(\d{1,2})E(\d{1,3})`)

// releaseNoise strips the tokens release names carry after the title.
var releaseNoise = regexp.MustCompile(`(?i)[. _-](19\d{2}|20\d{2}|2160p|1080p|720p|480p|bluray|blu-ray|web-?dl|webrip|hdtv|remux|x264|x265|h264|h265|hevc|aac|dts|ac3|proper|repack).*$`)

// parseEpisodeName extracts series title, season, and episode from a
// release-style filename.
func parseEpisodeName(name string) (season, episode int, seriesTitle string, ok bool) {
	m := episodeNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, "", false
	}
	season, _ = strconv.Atoi(m[2])
	episode, _ = strconv.Atoi(m[3])
	seriesTitle = cleanTitle(m[1])
	if season == 0 || episode == 0 || seriesTitle == "" {
		return 0, 0, "", false
	}
	return season, episode, seriesTitle, true
}

// cleanTitle turns a dotted release name into a readable title.
func cleanTitle(name string) string {
	name = releaseNoise.ReplaceAllString(name, "")
	name = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
