package cmd

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
)

// initOTelExporter wires an OTLP span exporter (gRPC or HTTP, per
// cfg.Telemetry.Protocol) onto the process-wide TracerProvider, so agent/tool
// spans emitted through internal/tracing also leave the process for an
// external collector (Jaeger, Tempo, a vendor backend) — independent of the
// in-process Collector, which only ever mirrors spans into a local store.
// A disabled or unconfigured telemetry section is a deliberate no-op.
func initOTelExporter(ctx context.Context, cfg *config.Config, _ *tracing.Collector) func() {
	tel := cfg.Telemetry
	if !tel.Enabled || tel.Endpoint == "" {
		return nil
	}

	serviceName := tel.ServiceName
	if serviceName == "" {
		serviceName = "goclaw-gateway"
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch tel.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(tel.Endpoint)}
		if tel.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(tel.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(tel.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // grpc
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tel.Endpoint)}
		if tel.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(tel.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(tel.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		slog.Warn("otel: failed to create exporter, tracing export disabled", "error", err)
		return nil
	}

	res, _ := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("otel: tracing export enabled", "endpoint", tel.Endpoint, "protocol", tel.Protocol, "service", serviceName)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("otel: tracer provider shutdown error", "error", err)
		}
	}
}
