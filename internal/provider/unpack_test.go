package provider

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,000\nHallo.\n\n"

// sampleSRT compressed as an XZ stream.
var sampleXZ = []byte{
	0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x04, 0xe6, 0xd6, 0xb4, 0x46,
	0x02, 0x00, 0x21, 0x01, 0x16, 0x00, 0x00, 0x00, 0x74, 0x2f, 0xe5, 0xa3,
	0xe0, 0x00, 0x27, 0x00, 0x20, 0x5d, 0x00, 0x18, 0x82, 0x82, 0x5c, 0x0c,
	0x66, 0x2c, 0xdd, 0xc0, 0x8d, 0x74, 0x9f, 0x60, 0x1f, 0x2c, 0xba, 0x21,
	0xa7, 0x19, 0x0b, 0x4d, 0xbd, 0xf7, 0xb9, 0xc2, 0xf5, 0x22, 0x92, 0x10,
	0xe5, 0xb0, 0x00, 0x00, 0x44, 0x28, 0x48, 0xe9, 0x5f, 0x27, 0xc5, 0x4b,
	0x00, 0x01, 0x3c, 0x28, 0x2e, 0x64, 0xc0, 0x66, 0x1f, 0xb6, 0xf3, 0x7d,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x04, 0x59, 0x5a,
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnpackPassesThroughBareSubtitle(t *testing.T) {
	content, inner, err := Unpack([]byte(sampleSRT), "ep01.srt")
	require.NoError(t, err)
	assert.Equal(t, sampleSRT, string(content))
	assert.Empty(t, inner)
}

func TestUnpackZipPicksHighestRankedFormat(t *testing.T) {
	data := zipArchive(t, map[string]string{
		"readme.txt": "ignore me",
		"ep01.srt":   sampleSRT,
		"ep01.ass":   "[Script Info]\n",
	})

	content, inner, err := Unpack(data, "ep01.zip")
	require.NoError(t, err)
	assert.Equal(t, "ep01.ass", inner)
	assert.Contains(t, string(content), "[Script Info]")
}

func TestUnpackZipWithoutSubtitle(t *testing.T) {
	data := zipArchive(t, map[string]string{"readme.txt": "nothing here"})

	_, _, err := Unpack(data, "ep01.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subtitle file")
}

func TestUnpackGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sampleSRT))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	content, inner, err := Unpack(buf.Bytes(), "ep01.srt.gz")
	require.NoError(t, err)
	assert.Equal(t, sampleSRT, string(content))
	assert.Equal(t, "ep01.srt", inner)
}

func TestUnpackXz(t *testing.T) {
	content, inner, err := Unpack(sampleXZ, "ep01.srt.xz")
	require.NoError(t, err)
	assert.Equal(t, sampleSRT, string(content))
	assert.Equal(t, "ep01.srt", inner)
}

func TestUnpackRarRejectsCorruptArchive(t *testing.T) {
	// Correct magic, garbage body. The decoder must fail cleanly instead
	// of handing compressed bytes downstream.
	data := append([]byte("Rar!\x1a\x07\x00"), bytes.Repeat([]byte{0xab}, 64)...)

	_, _, err := Unpack(data, "ep01.rar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rar")
}
