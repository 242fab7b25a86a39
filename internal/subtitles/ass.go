package subtitles

import (
	"fmt"
	"strings"
)

// Event is one line from the [Events] section.
type Event struct {
	Kind   string   // Dialogue or Comment
	Fields []string // raw field values in format order
	Style  string
	Text   string
}

// ASSFile is a parsed ASS or SSA script. Header lines (script info,
// styles) are kept verbatim so a rewrite only touches event text.
type ASSFile struct {
	Header      []string
	EventFormat []string
	Events      []Event
	Footer      []string
}

// ParseASS parses an ASS/SSA script.
func ParseASS(content string) (*ASSFile, error) {
	f := &ASSFile{}
	inEvents := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		if !inEvents {
			f.Header = append(f.Header, line)
			if strings.EqualFold(trimmed, "[Events]") {
				inEvents = true
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "Format:"):
			f.Header = append(f.Header, line)
			raw := strings.TrimPrefix(trimmed, "Format:")
			for _, field := range strings.Split(raw, ",") {
				f.EventFormat = append(f.EventFormat, strings.TrimSpace(field))
			}
		case strings.HasPrefix(trimmed, "Dialogue:"), strings.HasPrefix(trimmed, "Comment:"):
			if len(f.EventFormat) == 0 {
				return nil, fmt.Errorf("event line before Format line")
			}
			kind := "Dialogue"
			rest := strings.TrimPrefix(trimmed, "Dialogue:")
			if strings.HasPrefix(trimmed, "Comment:") {
				kind = "Comment"
				rest = strings.TrimPrefix(trimmed, "Comment:")
			}
			// Text is the last field and may contain commas.
			fields := strings.SplitN(strings.TrimSpace(rest), ",", len(f.EventFormat))
			if len(fields) != len(f.EventFormat) {
				return nil, fmt.Errorf("event line has %d fields, format declares %d", len(fields), len(f.EventFormat))
			}
			ev := Event{Kind: kind, Fields: fields}
			for i, name := range f.EventFormat {
				switch name {
				case "Style":
					ev.Style = strings.TrimSpace(fields[i])
				case "Text":
					ev.Text = fields[i]
				}
			}
			f.Events = append(f.Events, ev)
		default:
			// Trailing sections after [Events] are rare; keep them.
			f.Footer = append(f.Footer, line)
		}
	}

	if len(f.EventFormat) == 0 {
		return nil, fmt.Errorf("no [Events] Format line found")
	}
	return f, nil
}

// Render writes the script back out, substituting each event's Text.
func (f *ASSFile) Render() string {
	var b strings.Builder
	for _, line := range f.Header {
		b.WriteString(line)
		b.WriteString("\n")
	}

	textIdx := -1
	for i, name := range f.EventFormat {
		if name == "Text" {
			textIdx = i
		}
	}

	for _, ev := range f.Events {
		fields := make([]string, len(ev.Fields))
		copy(fields, ev.Fields)
		if textIdx >= 0 {
			fields[textIdx] = ev.Text
		}
		b.WriteString(ev.Kind)
		b.WriteString(": ")
		b.WriteString(strings.Join(fields, ","))
		b.WriteString("\n")
	}

	for _, line := range f.Footer {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// DialogueIndexes returns the indexes of translatable events: dialogue
// lines whose style classified as dialog, with non-empty text.
func (f *ASSFile) DialogueIndexes(classes map[string]StyleClass) []int {
	var out []int
	for i, ev := range f.Events {
		if ev.Kind != "Dialogue" {
			continue
		}
		if classes[ev.Style] != StyleDialog {
			continue
		}
		if strings.TrimSpace(ev.Text) == "" {
			continue
		}
		out = append(out, i)
	}
	return out
}
