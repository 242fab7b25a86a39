package subtitles

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assScript(events ...string) string {
	var b strings.Builder
	b.WriteString("[Script Info]\nTitle: Test\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ev := range events {
		b.WriteString(ev)
		b.WriteString("\n")
	}
	return b.String()
}

func dialogue(style, text string) string {
	return fmt.Sprintf("Dialogue: 0,0:00:01.00,0:00:02.00,%s,,0,0,0,,%s", style, text)
}

func TestClassifyStylesByName(t *testing.T) {
	script := assScript(
		dialogue("Default", "Hello there."),
		dialogue("Signs", `{\pos(100,200)}STORE`),
		dialogue("OP", "opening lyrics"),
		dialogue("Main-Italics", "inner voice"),
		dialogue("SongTL", "lyric line"),
	)
	f, err := ParseASS(script)
	require.NoError(t, err)

	classes := ClassifyStyles(f)
	assert.Equal(t, StyleDialog, classes["Default"])
	assert.Equal(t, StyleSigns, classes["Signs"])
	assert.Equal(t, StyleSigns, classes["OP"])
	assert.Equal(t, StyleDialog, classes["Main-Italics"])
	assert.Equal(t, StyleSigns, classes["SongTL"])
}

func TestClassifyUnknownStyleByPositionRatio(t *testing.T) {
	// 5 events, 5 positioned: 100% > 80% threshold.
	positioned := assScript(
		dialogue("Mystery", `{\pos(1,1)}a`),
		dialogue("Mystery", `{\move(1,1,2,2)}b`),
		dialogue("Mystery", `{\org(5,5)}c`),
		dialogue("Mystery", `{\pos(9,9)}d`),
		dialogue("Mystery", `{\pos(3,3)}e`),
	)
	f, err := ParseASS(positioned)
	require.NoError(t, err)
	assert.Equal(t, StyleSigns, ClassifyStyles(f)["Mystery"])

	// Exactly 80% positioned does not cross the strictly-greater rule.
	borderline := assScript(
		dialogue("Mystery", `{\pos(1,1)}a`),
		dialogue("Mystery", `{\pos(1,1)}b`),
		dialogue("Mystery", `{\pos(1,1)}c`),
		dialogue("Mystery", `{\pos(1,1)}d`),
		dialogue("Mystery", "plain"),
	)
	f, err = ParseASS(borderline)
	require.NoError(t, err)
	assert.Equal(t, StyleDialog, ClassifyStyles(f)["Mystery"])
}

func TestClassifyNameBeatsHeuristic(t *testing.T) {
	// A dialog-named style stays dialog even when fully positioned.
	script := assScript(
		dialogue("Default", `{\pos(1,1)}a`),
		dialogue("Default", `{\pos(1,1)}b`),
	)
	f, err := ParseASS(script)
	require.NoError(t, err)
	assert.Equal(t, StyleDialog, ClassifyStyles(f)["Default"])
}

func TestDialogueIndexesSkipsCommentsSignsAndEmpty(t *testing.T) {
	script := assScript(
		dialogue("Default", "first"),
		"Comment: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,nope",
		dialogue("Signs", "sign text"),
		dialogue("Default", "  "),
		dialogue("Default", "second"),
	)
	f, err := ParseASS(script)
	require.NoError(t, err)

	idx := f.DialogueIndexes(ClassifyStyles(f))
	assert.Equal(t, []int{0, 4}, idx)
}
