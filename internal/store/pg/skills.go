package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PGSkillStore persists user-authored skill bundles (markdown with
// frontmatter, same format internal/skills.Loader reads from disk) in
// Postgres so they survive container restarts in managed mode.
type PGSkillStore struct {
	db        *sql.DB
	skillsDir string
	embedding store.EmbeddingProvider
}

func NewPGSkillStore(db *sql.DB, skillsDir string) *PGSkillStore {
	return &PGSkillStore{db: db, skillsDir: skillsDir}
}

// SetEmbeddingProvider is a no-op hook kept for parity with PGMemoryStore;
// skill search here is name-based, not semantic.
func (s *PGSkillStore) SetEmbeddingProvider(p store.EmbeddingProvider) {
	s.embedding = p
}

func (s *PGSkillStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM skills ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *PGSkillStore) Get(ctx context.Context, name string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM skills WHERE name = $1`, name).Scan(&content)
	return content, err
}

func (s *PGSkillStore) Put(ctx context.Context, name, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills (name, content, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (name) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		name, content, time.Now())
	return err
}

func (s *PGSkillStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE name = $1`, name)
	return err
}
