package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

type stubSource struct {
	backend string
}

func (s *stubSource) GetString(ctx context.Context, key, def string) string {
	if key == "translation_backend" && s.backend != "" {
		return s.backend
	}
	return def
}

func (s *stubSource) Namespace(ctx context.Context, prefix string) (map[string]string, error) {
	return map[string]string{}, nil
}

// stubBackend translates by prefixing lines; failures are scripted per
// call index.
type stubBackend struct {
	batchSize int
	calls     int
	failFirst int      // fail this many calls before succeeding
	output    []string // fixed output overriding the default translation
	err       error
}

func (b *stubBackend) Info() Info {
	size := b.batchSize
	if size == 0 {
		size = 10
	}
	return Info{Name: "stub", MaxBatchSize: size, SupportsBatching: true}
}

func (b *stubBackend) TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []GlossaryEntry) (*Result, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	if b.calls <= b.failFirst {
		return nil, errors.New("scripted failure")
	}
	out := b.output
	if out == nil {
		out = make([]string, len(lines))
		for i, line := range lines {
			out[i] = "DE:" + line
		}
	}
	return &Result{Lines: out, Success: true}, nil
}

func (b *stubBackend) HealthCheck(ctx context.Context) (bool, string) { return true, "ok" }

func newManager(t *testing.T, backend Backend) *Manager {
	t.Helper()
	m := NewManager(&stubSource{backend: "stub"}, "stub", 2, testutil.NopLogger())
	m.Register("stub", func(settings map[string]string) (Backend, error) {
		return backend, nil
	})
	return m
}

func TestTranslatePreservesLineCountAndOrder(t *testing.T) {
	backend := &stubBackend{}
	m := newManager(t, backend)

	lines := []string{"one", "two", "three"}
	res, err := m.Translate(context.Background(), lines, "en", "de", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"DE:one", "DE:two", "DE:three"}, res.Lines)
	assert.False(t, res.Degraded)
}

func TestTranslateEmptyInput(t *testing.T) {
	m := newManager(t, &stubBackend{})
	res, err := m.Translate(context.Background(), nil, "en", "de", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Lines)
}

func TestTranslateRetriesLineCountMismatch(t *testing.T) {
	backend := &stubBackend{output: []string{"only-one"}}
	m := newManager(t, backend)

	// Batch responses always come back short, so the batch path retries
	// and then falls back to per-line, where the single-line output is
	// a correct length.
	res, err := m.Translate(context.Background(), []string{"a", "b"}, "en", "de", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"only-one", "only-one"}, res.Lines)
}

func TestTranslateCJKGuardRejectsHallucination(t *testing.T) {
	backend := &stubBackend{output: []string{"こんにちは"}}
	m := newManager(t, backend)

	// Japanese output for a German target is never accepted; after the
	// retry budget the line degrades to the source text.
	res, err := m.Translate(context.Background(), []string{"hello"}, "en", "de", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "1 of 1 lines failed")
	assert.Equal(t, []string{"hello"}, res.Lines)
}

func TestTranslateCJKAllowedForCJKTarget(t *testing.T) {
	backend := &stubBackend{output: []string{"こんにちは"}}
	m := newManager(t, backend)

	res, err := m.Translate(context.Background(), []string{"hello"}, "en", "ja", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"こんにちは"}, res.Lines)
}

func TestTranslateDegradedUnderHalfSucceeds(t *testing.T) {
	// Batch of 3 where the batch call fails permanently, and per-line
	// calls fail for exactly one line: 1/3 degraded is still a success.
	backend := &selectiveBackend{failLine: "bad"}
	m := newManager(t, backend)

	res, err := m.Translate(context.Background(), []string{"ok1", "bad", "ok2"}, "en", "de", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"DE:ok1", "bad", "DE:ok2"}, res.Lines)
}

func TestTranslateMajorityDegradedFails(t *testing.T) {
	backend := &selectiveBackend{failLine: "bad"}
	m := newManager(t, backend)

	res, err := m.Translate(context.Background(), []string{"bad", "bad", "ok"}, "en", "de", nil)
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestTranslateUnknownBackend(t *testing.T) {
	m := NewManager(&stubSource{backend: "missing"}, "stub", 1, testutil.NopLogger())
	_, err := m.Translate(context.Background(), []string{"x"}, "en", "de", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown translation backend")
}

// selectiveBackend fails whole batches and any single line equal to
// failLine, so the per-line fallback degrades exactly those lines.
type selectiveBackend struct {
	failLine string
}

func (b *selectiveBackend) Info() Info {
	return Info{Name: "stub", MaxBatchSize: 10, SupportsBatching: true}
}

func (b *selectiveBackend) HealthCheck(ctx context.Context) (bool, string) { return true, "ok" }

func (b *selectiveBackend) TranslateBatch(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []GlossaryEntry) (*Result, error) {
	if len(lines) > 1 {
		return nil, errors.New("batch refused")
	}
	if lines[0] == b.failLine {
		return nil, errors.New("line refused")
	}
	return &Result{Lines: []string{"DE:" + lines[0]}, Success: true}, nil
}

func TestBuildPromptNumbersLines(t *testing.T) {
	prompt := BuildPrompt([]string{"hello", "world"}, "en", "de", []GlossaryEntry{{Source: "world", Target: "Welt"}})

	assert.Contains(t, prompt, "1: hello")
	assert.Contains(t, prompt, "2: world")
	assert.Contains(t, prompt, "world → Welt")
	assert.Contains(t, prompt, "from en to de")
}

func TestParseResponseNumbered(t *testing.T) {
	lines, err := ParseResponse("1: Hallo\n2: Welt", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Welt"}, lines)
}

func TestParseResponseDotNumbering(t *testing.T) {
	lines, err := ParseResponse("1. Hallo\n2. Welt", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Welt"}, lines)
}

func TestParseResponseStripsFences(t *testing.T) {
	lines, err := ParseResponse("```\n1: Hallo\n2: Welt\n```", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Welt"}, lines)
}

func TestParseResponseMergesContinuations(t *testing.T) {
	lines, err := ParseResponse("1: Hallo\nzusammen\n2: Welt", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo zusammen", "Welt"}, lines)
}

func TestParseResponseBareLines(t *testing.T) {
	lines, err := ParseResponse("Hallo\nWelt", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Welt"}, lines)
}

func TestParseResponseCountMismatch(t *testing.T) {
	_, err := ParseResponse("1: Hallo", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 lines")
}

func TestParseResponseLargeBatch(t *testing.T) {
	var b strings.Builder
	want := make([]string, 40)
	for i := 0; i < 40; i++ {
		want[i] = fmt.Sprintf("line %d", i+1)
		fmt.Fprintf(&b, "%d: line %d\n", i+1, i+1)
	}
	lines, err := ParseResponse(b.String(), 40)
	require.NoError(t, err)
	assert.Equal(t, want, lines)
}

func TestContainsCJK(t *testing.T) {
	assert.True(t, ContainsCJK("漢字"))
	assert.True(t, ContainsCJK("mixed ひらがな text"))
	assert.True(t, ContainsCJK("한국어"))
	assert.False(t, ContainsCJK("nur deutsch äöü"))
}
