package translator

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sublarr/sublarr/internal/translation"
)

// profileSeed is the YAML shape of one seeded language profile.
type profileSeed struct {
	Name           string `yaml:"name"`
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	Glossary       []struct {
		Source string `yaml:"source"`
		Target string `yaml:"target"`
	} `yaml:"glossary"`
}

// SeedProfiles loads language profiles from a YAML file and upserts
// them by name. Profiles created through the API are left alone; a seed
// entry matching an existing name updates that profile in place.
func SeedProfiles(ctx context.Context, store *ProfileStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var seeds []profileSeed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	existing, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]int64, len(existing))
	for _, p := range existing {
		byName[p.Name] = p.ID
	}

	seeded := 0
	for i, seed := range seeds {
		if seed.Name == "" || seed.SourceLanguage == "" || seed.TargetLanguage == "" {
			return seeded, fmt.Errorf("profile %d is missing name, source_language, or target_language", i)
		}

		profile := Profile{
			ID:             byName[seed.Name],
			Name:           seed.Name,
			SourceLanguage: seed.SourceLanguage,
			TargetLanguage: seed.TargetLanguage,
		}
		for _, g := range seed.Glossary {
			profile.Glossary = append(profile.Glossary, translation.GlossaryEntry{Source: g.Source, Target: g.Target})
		}
		if err := store.Save(ctx, &profile); err != nil {
			return seeded, fmt.Errorf("failed to save profile %q: %w", seed.Name, err)
		}
		seeded++
	}
	return seeded, nil
}
