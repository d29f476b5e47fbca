package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a fresh random identifier, used for trace/span/record IDs
// across every store implementation.
func GenNewID() uuid.UUID {
	return uuid.New()
}

// BaseModel holds the ID/timestamp columns shared by every Postgres-backed
// record type; embed it rather than repeating the three fields everywhere.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateUserID rejects empty or overlong external user IDs before they're
// written to a record's CreatedBy/GrantedBy/UserID column.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	if len(userID) > 256 {
		return fmt.Errorf("user id too long (max 256 chars)")
	}
	return nil
}

// Trace status values.
const (
	TraceStatusRunning   = "running"
	TraceStatusCompleted = "completed"
	TraceStatusError     = "error"
	TraceStatusCancelled = "cancelled"
)

// Span types.
const (
	SpanTypeAgent   = "agent"
	SpanTypeLLMCall = "llm_call"
	SpanTypeToolCall = "tool_call"
)

// Span status values.
const (
	SpanStatusCompleted = "completed"
	SpanStatusError      = "error"
)

// Span levels, mirroring OTel's severity-ish default level.
const (
	SpanLevelDefault = "DEFAULT"
)

// TraceData is one agent run, the root of a span tree.
type TraceData struct {
	ID            uuid.UUID  `json:"id"`
	RunID         string     `json:"runId"`
	SessionKey    string     `json:"sessionKey"`
	UserID        string     `json:"userId,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	AgentID       *uuid.UUID `json:"agentId,omitempty"`
	ParentTraceID *uuid.UUID `json:"parentTraceId,omitempty"`
	Name          string     `json:"name"`
	InputPreview  string     `json:"inputPreview,omitempty"`
	Status        string     `json:"status"`
	Tags          []string   `json:"tags,omitempty"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SpanData is one unit of work (LLM call, tool call, or the enclosing agent
// span) inside a trace.
type SpanData struct {
	ID           uuid.UUID  `json:"id"`
	TraceID      uuid.UUID  `json:"traceId"`
	ParentSpanID *uuid.UUID `json:"parentSpanId,omitempty"`
	AgentID      *uuid.UUID `json:"agentId,omitempty"`
	SpanType     string     `json:"spanType"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Level        string     `json:"level"`
	Error        string     `json:"error,omitempty"`

	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	ToolName     string `json:"toolName,omitempty"`
	ToolCallID   string `json:"toolCallId,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`

	InputPreview  string `json:"inputPreview,omitempty"`
	OutputPreview string `json:"outputPreview,omitempty"`
	InputTokens   int    `json:"inputTokens,omitempty"`
	OutputTokens  int    `json:"outputTokens,omitempty"`
	Metadata      []byte `json:"metadata,omitempty"`

	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DurationMS int        `json:"durationMs"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// TracingStore durably mirrors traces and spans for the debug UI / trace
// inspection tooling. Nil in deployments that don't want a durable trace
// mirror; the in-process OTel exporter keeps working either way.
type TracingStore interface {
	CreateTrace(ctx context.Context, trace *TraceData) error
	FinishTrace(ctx context.Context, traceID uuid.UUID, status, errMsg, outputPreview string) error
	InsertSpan(ctx context.Context, span SpanData) error
}
