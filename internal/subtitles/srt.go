package subtitles

import (
	"fmt"
	"strconv"
	"strings"
)

// Cue is one SRT block.
type Cue struct {
	Index  int
	Timing string // "00:00:01,000 --> 00:00:02,500" kept verbatim
	Lines  []string
}

// SRTFile is a parsed SRT document.
type SRTFile struct {
	Cues []Cue
}

// ParseSRT parses SRT content. Index numbers are re-derived on render,
// so gaps or duplicates in the input are tolerated.
func ParseSRT(content string) (*SRTFile, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")

	f := &SRTFile{}
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		idxLine := 0
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			// Some files omit the index line.
			index = len(f.Cues) + 1
		} else {
			idxLine = 1
		}
		if idxLine >= len(lines) || !strings.Contains(lines[idxLine], "-->") {
			return nil, fmt.Errorf("cue %d: missing timing line", index)
		}

		cue := Cue{
			Index:  index,
			Timing: strings.TrimSpace(lines[idxLine]),
		}
		cue.Lines = append(cue.Lines, lines[idxLine+1:]...)
		f.Cues = append(f.Cues, cue)
	}

	if len(f.Cues) == 0 {
		return nil, fmt.Errorf("no cues found")
	}
	return f, nil
}

// Render writes the document back out with sequential indexes.
func (f *SRTFile) Render() string {
	var b strings.Builder
	for i, cue := range f.Cues {
		fmt.Fprintf(&b, "%d\n%s\n", i+1, cue.Timing)
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Texts returns one joined string per cue, hard breaks encoded as \N so
// translation round-trips through a single line.
func (f *SRTFile) Texts() []string {
	out := make([]string, len(f.Cues))
	for i, cue := range f.Cues {
		out[i] = strings.Join(cue.Lines, `\N`)
	}
	return out
}

// SetTexts replaces cue texts from translated lines, splitting \N back
// into separate lines.
func (f *SRTFile) SetTexts(texts []string) error {
	if len(texts) != len(f.Cues) {
		return fmt.Errorf("got %d texts for %d cues", len(texts), len(f.Cues))
	}
	for i, text := range texts {
		f.Cues[i].Lines = strings.Split(text, `\N`)
	}
	return nil
}
