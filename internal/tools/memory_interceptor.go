package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// memoryFilePrefix is the virtual path read_file routes to indexed long-term
// memory instead of the workspace filesystem, e.g. "memory/recent.md".
const memoryFilePrefix = "memory/"

// MemoryInterceptor routes read_file calls for virtual memory/* paths to the
// durable MemoryStore instead of the on-disk workspace, so an agent can pull
// back its own indexed memory chunks the same way it reads any other file.
type MemoryInterceptor struct {
	memory  store.MemoryStore
	agentID string
}

// NewMemoryInterceptor creates an interceptor backed by ms for the given
// agent. agentID is fixed at construction since a Loop's memory is scoped to
// itself, not to the caller's per-request context.
func NewMemoryInterceptor(ms store.MemoryStore, agentID string) *MemoryInterceptor {
	return &MemoryInterceptor{memory: ms, agentID: agentID}
}

// ReadFile resolves a "memory/<query>" path by searching the memory store for
// query (the path stem). Returns (content, false, nil) when path doesn't
// match the memory/ prefix, so callers fall through to normal file handling.
func (m *MemoryInterceptor) ReadFile(ctx context.Context, path string) (string, bool, error) {
	rel := strings.TrimPrefix(path, "/")
	if !strings.HasPrefix(rel, memoryFilePrefix) {
		return "", false, nil
	}
	if m.memory == nil {
		return "", true, fmt.Errorf("memory store not configured")
	}

	query := strings.TrimSuffix(strings.TrimPrefix(rel, memoryFilePrefix), ".md")
	chunks, err := m.memory.Search(ctx, m.agentID, query, 10)
	if err != nil {
		return "", true, err
	}
	if len(chunks) == 0 {
		return "", true, nil
	}

	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(c.Content)
	}
	return b.String(), true, nil
}
