package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/goclaw/internal/skills"
)

// FileSkillStore adapts a skills.Loader (disk-backed) to store.SkillStore,
// writing updates straight back to the loader's workspace skills directory
// and triggering a reload so readers see the change immediately.
type FileSkillStore struct {
	loader *skills.Loader
	dir    string
}

// NewFileSkillStore wraps an already-loaded skills.Loader. New skills are
// written under writeDir/skills (created if missing).
func NewFileSkillStore(loader *skills.Loader, writeDir string) *FileSkillStore {
	return &FileSkillStore{loader: loader, dir: filepath.Join(writeDir, "skills")}
}

func (f *FileSkillStore) List(ctx context.Context) ([]string, error) {
	return f.loader.ListSkills(), nil
}

func (f *FileSkillStore) Get(ctx context.Context, name string) (string, error) {
	s, ok := f.loader.Get(name)
	if !ok {
		return "", fmt.Errorf("skill not found: %s", name)
	}
	return s.Content, nil
}

func (f *FileSkillStore) Put(ctx context.Context, name, content string) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}
	path := filepath.Join(f.dir, name+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write skill: %w", err)
	}
	return f.loader.Reload()
}

func (f *FileSkillStore) Delete(ctx context.Context, name string) error {
	path := filepath.Join(f.dir, name+".md")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete skill: %w", err)
	}
	return f.loader.Reload()
}
