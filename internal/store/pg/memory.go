package pg

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PGMemoryConfig tunes the memory index: how many chunks a search returns by
// default and the minimum cosine similarity for a vector match to count.
type PGMemoryConfig struct {
	DefaultLimit   int
	MinScore       float64
}

// DefaultPGMemoryConfig matches the context engine's default retrieval
// window (5 chunks, 100 tokens/chunk worth of relevance headroom).
func DefaultPGMemoryConfig() PGMemoryConfig {
	return PGMemoryConfig{DefaultLimit: 5, MinScore: 0.2}
}

// PGMemoryStore implements store.MemoryStore backed by Postgres, with an
// optional embedding provider for vector similarity search. Without one it
// falls back to a plain substring/recency search so memory stays useful
// before an embedding model is configured.
type PGMemoryStore struct {
	db        *sql.DB
	cfg       PGMemoryConfig
	embedding store.EmbeddingProvider
}

func NewPGMemoryStore(db *sql.DB, cfg PGMemoryConfig) *PGMemoryStore {
	return &PGMemoryStore{db: db, cfg: cfg}
}

func (s *PGMemoryStore) SetEmbeddingProvider(p store.EmbeddingProvider) {
	s.embedding = p
}

func (s *PGMemoryStore) IndexDocument(ctx context.Context, agentID, content string) error {
	var embedding []float32
	if s.embedding != nil {
		vec, err := s.embedding.Embed(ctx, content)
		if err == nil {
			embedding = vec
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_chunks (id, agent_id, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		store.GenNewID(), agentID, content, float32ArrayLiteral(embedding), time.Now())
	return err
}

func (s *PGMemoryStore) Search(ctx context.Context, agentID, query string, limit int) ([]store.MemoryChunk, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	if s.embedding != nil {
		queryVec, err := s.embedding.Embed(ctx, query)
		if err == nil {
			return s.searchByVector(ctx, agentID, queryVec, limit)
		}
	}
	return s.searchByRecency(ctx, agentID, limit)
}

func (s *PGMemoryStore) searchByRecency(ctx context.Context, agentID string, limit int) ([]store.MemoryChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, content, created_at FROM memory_chunks
		 WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.MemoryChunk
	for rows.Next() {
		var c store.MemoryChunk
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Content, &createdAt); err != nil {
			continue
		}
		c.CreatedAt = createdAt.Unix()
		result = append(result, c)
	}
	return result, nil
}

// searchByVector pulls every chunk for the agent and ranks in Go rather than
// relying on a vector extension, so this store works against plain
// Postgres; BackfillEmbeddings/IndexDocument keep the embedding column
// populated for whichever rows have one.
func (s *PGMemoryStore) searchByVector(ctx context.Context, agentID string, queryVec []float32, limit int) ([]store.MemoryChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, content, embedding, created_at FROM memory_chunks WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []store.MemoryChunk
	for rows.Next() {
		var c store.MemoryChunk
		var embeddingLit sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Content, &embeddingLit, &createdAt); err != nil {
			continue
		}
		c.CreatedAt = createdAt.Unix()
		if embeddingLit.Valid {
			c.Embedding = parseFloat32ArrayLiteral(embeddingLit.String)
			c.Score = cosineSimilarity(queryVec, c.Embedding)
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// BackfillEmbeddings embeds any chunk that was indexed before an embedding
// provider was configured. Returns the number of chunks updated.
func (s *PGMemoryStore) BackfillEmbeddings(ctx context.Context) (int, error) {
	if s.embedding == nil {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM memory_chunks WHERE embedding IS NULL`)
	if err != nil {
		return 0, err
	}
	type pending struct{ id, content string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			continue
		}
		todo = append(todo, p)
	}
	rows.Close()

	updated := 0
	for _, p := range todo {
		vec, err := s.embedding.Embed(ctx, p.content)
		if err != nil {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE memory_chunks SET embedding = $1 WHERE id = $2`,
			float32ArrayLiteral(vec), p.id); err != nil {
			continue
		}
		updated++
	}
	return updated, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func float32ArrayLiteral(v []float32) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	s := "{"
	for i, f := range v {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g", f)
	}
	s += "}"
	return sql.NullString{String: s, Valid: true}
}

func parseFloat32ArrayLiteral(lit string) []float32 {
	if len(lit) < 2 {
		return nil
	}
	inner := lit[1 : len(lit)-1]
	if inner == "" {
		return nil
	}
	var out []float32
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			var f float64
			fmt.Sscanf(inner[start:i], "%g", &f)
			out = append(out, float32(f))
			start = i + 1
		}
	}
	return out
}
