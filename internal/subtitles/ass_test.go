package subtitles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseASS(t *testing.T) {
	script := assScript(
		dialogue("Default", "Hello, with a comma."),
		dialogue("Signs", `{\pos(10,20)}SIGN`),
	)
	f, err := ParseASS(script)
	require.NoError(t, err)

	require.Len(t, f.Events, 2)
	assert.Equal(t, "Dialogue", f.Events[0].Kind)
	assert.Equal(t, "Default", f.Events[0].Style)
	// Commas inside the text field survive the field split.
	assert.Equal(t, "Hello, with a comma.", f.Events[0].Text)
	assert.Equal(t, "Text", f.EventFormat[len(f.EventFormat)-1])
}

func TestParseASSRequiresFormatLine(t *testing.T) {
	_, err := ParseASS("[Events]\nDialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,hi\n")
	assert.Error(t, err)

	_, err = ParseASS("[Script Info]\nTitle: x\n")
	assert.Error(t, err)
}

func TestASSRenderSubstitutesText(t *testing.T) {
	f, err := ParseASS(assScript(dialogue("Default", "original")))
	require.NoError(t, err)

	f.Events[0].Text = "translated"
	out := f.Render()

	assert.Contains(t, out, ",translated")
	assert.NotContains(t, out, "original")
	// Header is carried verbatim.
	assert.Contains(t, out, "[Script Info]")
	assert.Contains(t, out, "Format: Layer, Start, End, Style")
}

func TestASSRenderRoundTrip(t *testing.T) {
	script := assScript(
		dialogue("Default", "line one"),
		"Comment: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,keep me",
		dialogue("Default", "line two"),
	)
	f, err := ParseASS(script)
	require.NoError(t, err)

	reparsed, err := ParseASS(f.Render())
	require.NoError(t, err)
	require.Len(t, reparsed.Events, 3)
	assert.Equal(t, "Comment", reparsed.Events[1].Kind)
	assert.Equal(t, "keep me", reparsed.Events[1].Text)
}

func TestASSKeepsTrailingSections(t *testing.T) {
	script := assScript(dialogue("Default", "hi")) + "\n[Fonts]\nfontname: x\n"
	f, err := ParseASS(script)
	require.NoError(t, err)

	out := f.Render()
	assert.True(t, strings.Contains(out, "[Fonts]"))
}
