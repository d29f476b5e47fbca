package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PGTracingStore mirrors agent-run traces and spans to Postgres for the
// trace inspection tooling; the in-process OTel exporter (internal/tracing)
// keeps working independently of whether this store is configured.
type PGTracingStore struct {
	db *sql.DB
}

func NewPGTracingStore(db *sql.DB) *PGTracingStore {
	return &PGTracingStore{db: db}
}

func (s *PGTracingStore) CreateTrace(ctx context.Context, t *store.TraceData) error {
	if t.ID == uuid.Nil {
		t.ID = store.GenNewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var parent any
	if t.ParentTraceID != nil {
		parent = *t.ParentTraceID
	}
	var agentID any
	if t.AgentID != nil {
		agentID = *t.AgentID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, run_id, session_key, user_id, channel, agent_id, parent_trace_id,
		                      name, input_preview, status, tags, start_time, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.RunID, t.SessionKey, t.UserID, t.Channel, agentID, parent,
		t.Name, t.InputPreview, t.Status, pq.Array(t.Tags), t.StartTime, t.CreatedAt)
	return err
}

func (s *PGTracingStore) FinishTrace(ctx context.Context, traceID uuid.UUID, status, errMsg, outputPreview string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE traces SET status = $1, end_time = $2, error = $3, output_preview = $4 WHERE id = $5`,
		status, now, errMsg, outputPreview, traceID)
	return err
}

func (s *PGTracingStore) InsertSpan(ctx context.Context, span store.SpanData) error {
	if span.ID == uuid.Nil {
		span.ID = store.GenNewID()
	}
	if span.CreatedAt.IsZero() {
		span.CreatedAt = time.Now().UTC()
	}
	var parentSpan any
	if span.ParentSpanID != nil {
		parentSpan = *span.ParentSpanID
	}
	var agentID any
	if span.AgentID != nil {
		agentID = *span.AgentID
	}
	var metadata any
	if len(span.Metadata) > 0 {
		metadata = json.RawMessage(span.Metadata)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (id, trace_id, parent_span_id, agent_id, span_type, name, status, level, error,
		                     model, provider, tool_name, tool_call_id, finish_reason,
		                     input_preview, output_preview, input_tokens, output_tokens, metadata,
		                     start_time, end_time, duration_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		span.ID, span.TraceID, parentSpan, agentID, span.SpanType, span.Name, span.Status, span.Level, span.Error,
		span.Model, span.Provider, span.ToolName, span.ToolCallID, span.FinishReason,
		span.InputPreview, span.OutputPreview, span.InputTokens, span.OutputTokens, metadata,
		span.StartTime, span.EndTime, span.DurationMS, span.CreatedAt)
	return err
}
