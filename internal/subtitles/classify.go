package subtitles

import (
	"regexp"
	"strings"
)

// StyleClass says whether a style's events get translated.
type StyleClass int

const (
	// StyleDialog events are translated.
	StyleDialog StyleClass = iota
	// StyleSigns events (signs, songs, karaoke) are left untouched.
	StyleSigns
)

// signsExact match the whole style name; signsSubstrings match anywhere.
var (
	signsExact      = map[string]bool{"op": true, "ed": true}
	signsSubstrings = []string{"sign", "song", "karaoke", "title", "note", "insert", "logo", "screen", "board", "card", "letter"}
	dialogSubstrings = []string{"default", "main", "dialogue", "italic", "flashback", "narrat", "top", "alt", "internal", "thought"}
)

var positionTagRe = regexp.MustCompile(`\\(?:pos|move|org)\(`)

// ClassifyStyles assigns each style used by dialogue events to dialog or
// signs. Name vocabularies win; for unknown names a style whose events
// are mostly absolutely positioned counts as signs.
func ClassifyStyles(f *ASSFile) map[string]StyleClass {
	type tally struct {
		total      int
		positioned int
	}
	counts := make(map[string]*tally)
	for _, ev := range f.Events {
		if ev.Kind != "Dialogue" {
			continue
		}
		t, ok := counts[ev.Style]
		if !ok {
			t = &tally{}
			counts[ev.Style] = t
		}
		t.total++
		if positionTagRe.MatchString(ev.Text) {
			t.positioned++
		}
	}

	classes := make(map[string]StyleClass, len(counts))
	for style, t := range counts {
		classes[style] = classifyStyle(style, t.total, t.positioned)
	}
	return classes
}

func classifyStyle(name string, total, positioned int) StyleClass {
	lower := strings.ToLower(name)
	if signsExact[lower] {
		return StyleSigns
	}
	for _, s := range signsSubstrings {
		if strings.Contains(lower, s) {
			return StyleSigns
		}
	}
	for _, s := range dialogSubstrings {
		if strings.Contains(lower, s) {
			return StyleDialog
		}
	}
	if total > 0 && positioned*5 > total*4 {
		return StyleSigns
	}
	return StyleDialog
}
