package subtitles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,500\nHello there.\n\n2\n00:00:03,000 --> 00:00:04,000\nTwo lines\nof text.\n"

func TestParseSRT(t *testing.T) {
	f, err := ParseSRT(sampleSRT)
	require.NoError(t, err)
	require.Len(t, f.Cues, 2)

	assert.Equal(t, "00:00:01,000 --> 00:00:02,500", f.Cues[0].Timing)
	assert.Equal(t, []string{"Hello there."}, f.Cues[0].Lines)
	assert.Equal(t, []string{"Two lines", "of text."}, f.Cues[1].Lines)
}

func TestParseSRTWithoutIndexLines(t *testing.T) {
	f, err := ParseSRT("00:00:01,000 --> 00:00:02,000\nno index\n")
	require.NoError(t, err)
	require.Len(t, f.Cues, 1)
	assert.Equal(t, []string{"no index"}, f.Cues[0].Lines)
}

func TestParseSRTStripsBOMAndCRLF(t *testing.T) {
	f, err := ParseSRT("\uFEFF1\r\n00:00:01,000 --> 00:00:02,000\r\nbom\r\n")
	require.NoError(t, err)
	require.Len(t, f.Cues, 1)
	assert.Equal(t, []string{"bom"}, f.Cues[0].Lines)
}

func TestParseSRTEmpty(t *testing.T) {
	_, err := ParseSRT("")
	assert.Error(t, err)
}

func TestParseSRTMissingTiming(t *testing.T) {
	_, err := ParseSRT("1\nno timing here\nmore text\n")
	assert.Error(t, err)
}

func TestSRTRenderRenumbers(t *testing.T) {
	f, err := ParseSRT("7\n00:00:01,000 --> 00:00:02,000\na\n\n99\n00:00:03,000 --> 00:00:04,000\nb\n")
	require.NoError(t, err)

	out := f.Render()
	reparsed, err := ParseSRT(out)
	require.NoError(t, err)
	assert.Equal(t, 1, reparsed.Cues[0].Index)
	assert.Equal(t, 2, reparsed.Cues[1].Index)
}

func TestSRTTextsRoundTrip(t *testing.T) {
	f, err := ParseSRT(sampleSRT)
	require.NoError(t, err)

	texts := f.Texts()
	assert.Equal(t, []string{"Hello there.", `Two lines\Nof text.`}, texts)

	require.NoError(t, f.SetTexts([]string{"Hallo.", `Zwei Zeilen\NText.`}))
	assert.Equal(t, []string{"Hallo."}, f.Cues[0].Lines)
	assert.Equal(t, []string{"Zwei Zeilen", "Text."}, f.Cues[1].Lines)
}

func TestSRTSetTextsLengthMismatch(t *testing.T) {
	f, err := ParseSRT(sampleSRT)
	require.NoError(t, err)
	assert.Error(t, f.SetTexts([]string{"only one"}))
}
