package store

import (
	"context"

	"github.com/google/uuid"
)

// Request-scoped identity threaded through an agent run: which agent is
// executing, on whose behalf, and through which channel identity. Set once
// in internal/agent.Loop.runLoop and read back by anything that needs to
// scope a lookup or a write to "this agent, this user" — context file
// routing, delegation permission checks, audit logging.

type ctxKey int

const (
	keyAgentID ctxKey = iota
	keyUserID
	keyAgentType
	keySenderID
)

// WithAgentID tags ctx with the UUID of the agent handling the current run.
// Zero value (uuid.Nil) means "no managed-mode agent identity" — callers
// treat that as "not applicable" rather than an error.
func WithAgentID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyAgentID, id)
}

func AgentIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(keyAgentID).(uuid.UUID)
	return id
}

// WithUserID tags ctx with the external user ID driving the current run.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyUserID).(string)
	return v
}

// WithAgentType tags ctx with the agent's type ("open" or "predefined").
func WithAgentType(ctx context.Context, agentType string) context.Context {
	return context.WithValue(ctx, keyAgentType, agentType)
}

func AgentTypeFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyAgentType).(string)
	return v
}

// WithSenderID tags ctx with the raw channel-level sender ID (distinct from
// UserID, which may be a normalized/group-scoped identity).
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, keySenderID, senderID)
}

func SenderIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keySenderID).(string)
	return v
}
