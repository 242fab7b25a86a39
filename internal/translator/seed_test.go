package translator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

const seedYAML = `
- name: German
  source_language: en
  target_language: de
  glossary:
    - source: Captain
      target: Kapitän
- name: French
  source_language: en
  target_language: fr
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedProfilesCreates(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewProfileStore(db.Conn)
	ctx := context.Background()

	n, err := SeedProfiles(ctx, store, writeSeedFile(t, seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	profiles, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "German", profiles[0].Name)
	require.Len(t, profiles[0].Glossary, 1)
	assert.Equal(t, "Kapitän", profiles[0].Glossary[0].Target)
}

func TestSeedProfilesUpdatesByName(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewProfileStore(db.Conn)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Profile{Name: "German", SourceLanguage: "en", TargetLanguage: "de"}))

	updated := `
- name: German
  source_language: ja
  target_language: de
`
	n, err := SeedProfiles(ctx, store, writeSeedFile(t, updated))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	profiles, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "ja", profiles[0].SourceLanguage)
}

func TestSeedProfilesRejectsIncompleteEntries(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewProfileStore(db.Conn)

	_, err := SeedProfiles(context.Background(), store, writeSeedFile(t, "- name: broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestSeedProfilesMissingFile(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewProfileStore(db.Conn)

	_, err := SeedProfiles(context.Background(), store, "/nonexistent/profiles.yaml")
	assert.Error(t, err)
}

func TestSeedProfilesMalformedYAML(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := NewProfileStore(db.Conn)

	_, err := SeedProfiles(context.Background(), store, writeSeedFile(t, "{not: [valid"))
	assert.Error(t, err)
}
