package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "code-runner"

// Tracer wraps OpenTelemetry tracing for the execution pipeline.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("coderunner.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// Common attribute keys for execution tracing.
var (
	AttrExecutionID = attribute.Key("coderunner.execution.id")
	AttrLanguage    = attribute.Key("coderunner.language")
	AttrStatus      = attribute.Key("coderunner.status")
	AttrExitCode    = attribute.Key("coderunner.exit_code")
)
