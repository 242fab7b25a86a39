package translation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxGlossaryEntries caps the glossary line so prompts stay small.
const maxGlossaryEntries = 15

// BuildPrompt renders the instruction block sent to chat and completion
// backends. Lines are numbered 1..N so the response can be re-aligned.
func BuildPrompt(lines []string, sourceLang, targetLang string, glossary []GlossaryEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Translate the following %d subtitle lines from %s to %s.\n", len(lines), sourceLang, targetLang)
	b.WriteString("Reply with exactly one translated line per input line, keeping the numbering.\n")
	b.WriteString("Do not add commentary. Preserve line breaks written as \\N.\n")

	if len(glossary) > 0 {
		entries := glossary
		if len(entries) > maxGlossaryEntries {
			entries = entries[:maxGlossaryEntries]
		}
		pairs := make([]string, 0, len(entries))
		for _, e := range entries {
			pairs = append(pairs, fmt.Sprintf("%s → %s", e.Source, e.Target))
		}
		b.WriteString("glossary: " + strings.Join(pairs, ", ") + "\n")
	}

	b.WriteString("\n")
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	return b.String()
}

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)\s*[:.]\s?(.*)$`)

// ParseResponse extracts count translated lines from a model response.
// Lines may carry "N:" or "N." prefixes; when the raw line count does not
// match, adjacent non-numbered lines are merged into their numbered
// predecessor before giving up.
func ParseResponse(response string, count int) ([]string, error) {
	raw := strings.Split(strings.TrimSpace(response), "\n")

	// Drop obvious wrapper noise (code fences, empty lines at the edges).
	cleaned := make([]string, 0, len(raw))
	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}

	// First pass: collect numbered lines by index.
	numbered := make(map[int]string, count)
	var lastNum int
	for _, line := range cleaned {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			// Merge stray continuation lines into the previous numbered one.
			if lastNum > 0 {
				numbered[lastNum] = strings.TrimSpace(numbered[lastNum] + " " + line)
			}
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > count {
			continue
		}
		numbered[n] = m[2]
		lastNum = n
	}

	if len(numbered) == count {
		out := make([]string, count)
		for i := 1; i <= count; i++ {
			out[i-1] = numbered[i]
		}
		return out, nil
	}

	// Unnumbered response: accept a bare line-per-line reply.
	if len(numbered) == 0 && len(cleaned) == count {
		return cleaned, nil
	}

	return nil, fmt.Errorf("expected %d lines, parsed %d", count, len(numbered))
}
