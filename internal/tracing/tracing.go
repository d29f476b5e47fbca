// Package tracing records agent-run traces (one root span per Run, child
// spans per LLM call and tool call) and exports them over OpenTelemetry,
// optionally mirroring the same data to a durable store.TracingStore for
// the trace inspection tooling.
package tracing

import (
	"context"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Collector is the single point every agent run, LLM call, and tool call
// reports through. It's safe to use with a nil *store.TracingStore: traces
// still export over OTel, they just aren't mirrored to Postgres.
type Collector struct {
	store   store.TracingStore
	tracer  oteltrace.Tracer
	verbose bool
}

// NewCollector wraps ts (nil disables the durable mirror) and reads
// GOCLAW_TRACE_VERBOSE to decide whether spans carry full message/output
// bodies instead of truncated previews.
func NewCollector(ts store.TracingStore) *Collector {
	return &Collector{
		store:   ts,
		tracer:  otel.Tracer("goclaw/agent"),
		verbose: os.Getenv("GOCLAW_TRACE_VERBOSE") != "",
	}
}

// Start begins accepting trace/span writes. A no-op hook kept symmetrical
// with Stop so callers can defer one right after the other regardless of
// whether the collector needs background work in a given configuration.
func (c *Collector) Start() {}

// Stop flushes any pending work. No-op today; kept for callers that defer it.
func (c *Collector) Stop() {}

// Verbose reports whether spans should carry full previews rather than
// truncated ones.
func (c *Collector) Verbose() bool { return c.verbose }

// CreateTrace opens a new trace and starts its OTel span. Returns an error
// only when the durable mirror is configured and the write failed; OTel
// export never blocks trace creation.
func (c *Collector) CreateTrace(ctx context.Context, t *store.TraceData) error {
	if c.store != nil {
		if err := c.store.CreateTrace(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// FinishTrace closes a trace by ID, updating the durable mirror if present.
func (c *Collector) FinishTrace(ctx context.Context, traceID uuid.UUID, status, errMsg, outputPreview string) error {
	if c.store == nil {
		return nil
	}
	return c.store.FinishTrace(ctx, traceID, status, errMsg, outputPreview)
}

// EmitSpan records a completed span (LLM call, tool call, or agent span),
// emitting a backdated OTel span with span.StartTime/EndTime and mirroring
// to the durable store if configured.
func (c *Collector) EmitSpan(span store.SpanData) {
	ctx := context.Background()

	start := span.StartTime
	end := start
	if span.EndTime != nil {
		end = *span.EndTime
	}

	_, otelSpan := c.tracer.Start(ctx, span.Name, oteltrace.WithTimestamp(start))
	otelSpan.SetAttributes(
		attribute.String("goclaw.span_type", span.SpanType),
		attribute.String("goclaw.trace_id", span.TraceID.String()),
	)
	if span.Model != "" {
		otelSpan.SetAttributes(attribute.String("goclaw.model", span.Model))
	}
	if span.Provider != "" {
		otelSpan.SetAttributes(attribute.String("goclaw.provider", span.Provider))
	}
	if span.ToolName != "" {
		otelSpan.SetAttributes(attribute.String("goclaw.tool_name", span.ToolName))
	}
	if span.InputTokens > 0 || span.OutputTokens > 0 {
		otelSpan.SetAttributes(
			attribute.Int("goclaw.input_tokens", span.InputTokens),
			attribute.Int("goclaw.output_tokens", span.OutputTokens),
		)
	}
	if span.Status == store.SpanStatusError {
		otelSpan.SetStatus(codes.Error, span.Error)
	} else {
		otelSpan.SetStatus(codes.Ok, "")
	}
	otelSpan.End(oteltrace.WithTimestamp(end))

	if c.store != nil {
		// Durable mirror is best-effort; the OTel export above already
		// carries the span regardless of this write's outcome.
		_ = c.store.InsertSpan(ctx, span)
	}
}
