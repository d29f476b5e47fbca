package tracing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	keyTraceID ctxKey = iota
	keyCollector
	keyParentSpanID
	keyAnnounceParentSpanID
	keyDelegateParentTraceID
)

func WithTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyTraceID, id)
}

func TraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(keyTraceID).(uuid.UUID)
	return id
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, keyCollector, c)
}

func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(keyCollector).(*Collector)
	return c
}

func WithParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyParentSpanID, id)
}

func ParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(keyParentSpanID).(uuid.UUID)
	return id
}

// WithAnnounceParentSpanID marks ctx as belonging to an announce run nested
// under an existing root agent span rather than starting a new one.
func WithAnnounceParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyAnnounceParentSpanID, id)
}

func AnnounceParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(keyAnnounceParentSpanID).(uuid.UUID)
	return id
}

// WithDelegateParentTraceID marks a delegated subagent run with the trace ID
// of whichever run spawned it, so the child trace can link back to it.
func WithDelegateParentTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyDelegateParentTraceID, id)
}

func DelegateParentTraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(keyDelegateParentTraceID).(uuid.UUID)
	return id
}
