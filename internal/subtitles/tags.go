package subtitles

import (
	"math"
	"regexp"
	"strings"
)

// Tag is one override block with its rune position in the clean text.
type Tag struct {
	Pos  int
	Text string
}

var overrideBlockRe = regexp.MustCompile(`\{[^}]*\}`)

// ExtractTags strips override blocks from an event text, returning the
// clean text and each block with the position it occupied.
func ExtractTags(text string) (string, []Tag) {
	var tags []Tag
	var clean []rune
	runes := []rune(text)

	for i := 0; i < len(runes); {
		if runes[i] == '{' {
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end >= 0 {
				tags = append(tags, Tag{Pos: len(clean), Text: string(runes[i : end+1])})
				i = end + 1
				continue
			}
		}
		clean = append(clean, runes[i])
		i++
	}
	return string(clean), tags
}

// ReinsertTags places tags back into translated text. A tag at position
// zero stays at zero; other positions scale proportionally, snap to the
// nearest word boundary within three characters, and are clamped so tag
// order is preserved.
func ReinsertTags(translated string, tags []Tag, origCleanLen int) string {
	if len(tags) == 0 {
		return translated
	}

	runes := []rune(translated)
	transLen := len(runes)

	positions := make([]int, len(tags))
	prev := 0
	for i, tag := range tags {
		pos := 0
		if tag.Pos > 0 && origCleanLen > 0 {
			pos = int(math.Round(float64(tag.Pos) / float64(origCleanLen) * float64(transLen)))
			pos = snapToBoundary(runes, pos)
		}
		if pos < prev {
			pos = prev
		}
		if pos > transLen {
			pos = transLen
		}
		positions[i] = pos
		prev = pos
	}

	var b strings.Builder
	cursor := 0
	for i, tag := range tags {
		b.WriteString(string(runes[cursor:positions[i]]))
		b.WriteString(tag.Text)
		cursor = positions[i]
	}
	b.WriteString(string(runes[cursor:]))
	return b.String()
}

// snapToBoundary moves pos to the nearest space or backslash within
// three characters, preferring the closest.
func snapToBoundary(runes []rune, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(runes) {
		return len(runes)
	}

	isBoundary := func(i int) bool {
		return i >= 0 && i < len(runes) && (runes[i] == ' ' || runes[i] == '\\')
	}
	if isBoundary(pos) {
		return pos
	}
	for d := 1; d <= 3; d++ {
		if isBoundary(pos - d) {
			return pos - d
		}
		if isBoundary(pos + d) {
			return pos + d
		}
	}
	return pos
}

var (
	literalBreakRe = regexp.MustCompile(`\\n|\n`)
	spaceRunRe     = regexp.MustCompile(`[ \t]+`)
)

// NormalizeBreaks converts model-emitted line breaks (literal \n or real
// newlines) to the ASS hard break and collapses whitespace runs.
func NormalizeBreaks(text string) string {
	text = literalBreakRe.ReplaceAllString(text, `\N`)
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
