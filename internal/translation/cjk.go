package translation

import "unicode"

// cjkTargets are the target languages for which CJK output is expected.
var cjkTargets = map[string]bool{
	"zh": true,
	"ja": true,
	"ko": true,
}

// IsCJKTarget reports whether CJK characters are legitimate in output for
// the given target language.
func IsCJKTarget(lang string) bool {
	return cjkTargets[lang]
}

// ContainsCJK reports whether s contains any CJK rune. Used as the
// hallucination guard: CJK output for a non-CJK target means the model
// drifted.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}

// AnyLineCJK reports whether any line contains CJK runes.
func AnyLineCJK(lines []string) bool {
	for _, line := range lines {
		if ContainsCJK(line) {
			return true
		}
	}
	return false
}
