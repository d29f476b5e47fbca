package store

import "context"

// StoreConfig configures the Postgres-backed store set (internal/store/pg).
// Only used when the operator opts into a durable mirror; file-backed
// standalone mode doesn't touch it.
type StoreConfig struct {
	PostgresDSN      string
	Mode             string
	EncryptionKey    string
	SkillsStorageDir string
}

// EmbeddingProvider generates vector embeddings for memory indexing. A thin
// interface so MemoryStore doesn't need to import internal/providers.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryChunk is one indexed, searchable fragment of long-term memory.
type MemoryChunk struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Content   string    `json:"content"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt int64     `json:"createdAt"`
	Embedding []float32 `json:"-"`
}

// MemoryStore indexes and retrieves long-term memory chunks, optionally
// backed by vector similarity search when an EmbeddingProvider is set.
type MemoryStore interface {
	IndexDocument(ctx context.Context, agentID, content string) error
	Search(ctx context.Context, agentID, query string, limit int) ([]MemoryChunk, error)
	SetEmbeddingProvider(p EmbeddingProvider)
}

// CronJobSpec is one scheduled job definition.
type CronJobSpec struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"` // cron expression
	AgentID  string `json:"agentId"`
	Message  string `json:"message"`
	Enabled  bool   `json:"enabled"`
}

// CronStore persists scheduled jobs and drives their execution, invoking
// the OnJob callback when a job fires.
type CronStore interface {
	Start() error
	Stop()
	SetOnJob(fn func(job CronJobSpec))
	List() ([]CronJobSpec, error)
	Upsert(job CronJobSpec) error
	Remove(name string) error
}

// SkillStore persists user-authored skill definitions beyond the
// filesystem-loaded bundle in internal/skills.
type SkillStore interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, content string) error
	Delete(ctx context.Context, name string) error
}
