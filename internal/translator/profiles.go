// Package translator implements the per-file decision tree: skip,
// upgrade, translate an adjacent subtitle, extract an embedded one, or
// transcribe.
package translator

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sublarr/sublarr/internal/translation"
)

// Profile pairs a source/target language with a glossary.
type Profile struct {
	ID             int64                       `json:"id"`
	Name           string                      `json:"name"`
	SourceLanguage string                      `json:"source_language"`
	TargetLanguage string                      `json:"target_language"`
	Glossary       []translation.GlossaryEntry `json:"glossary"`
}

// ProfileStore reads and writes language profiles.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a profile store.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// List returns every profile.
func (s *ProfileStore) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_language, target_language, glossary FROM language_profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var glossary string
		if err := rows.Scan(&p.ID, &p.Name, &p.SourceLanguage, &p.TargetLanguage, &glossary); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(glossary), &p.Glossary); err != nil {
			p.Glossary = nil
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ForTarget returns the first profile whose target matches lang, or nil.
func (s *ProfileStore) ForTarget(ctx context.Context, lang string) (*Profile, error) {
	profiles, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].TargetLanguage == lang {
			return &profiles[i], nil
		}
	}
	return nil, nil
}

// Save inserts or updates a profile.
func (s *ProfileStore) Save(ctx context.Context, p *Profile) error {
	glossary, err := json.Marshal(p.Glossary)
	if err != nil {
		return err
	}
	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO language_profiles (name, source_language, target_language, glossary) VALUES (?, ?, ?, ?)`,
			p.Name, p.SourceLanguage, p.TargetLanguage, string(glossary))
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE language_profiles SET name = ?, source_language = ?, target_language = ?, glossary = ? WHERE id = ?`,
		p.Name, p.SourceLanguage, p.TargetLanguage, string(glossary), p.ID)
	return err
}

// Delete removes a profile.
func (s *ProfileStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM language_profiles WHERE id = ?`, id)
	return err
}
