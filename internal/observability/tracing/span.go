package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smallbiznis/numberpool"

// Start opens an internal span using the global tracer provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it.
// Expected business errors are recorded without flagging the span as failed.
func End(span trace.Span, err error, expected ...error) {
	if err != nil {
		span.RecordError(err)
		if !isExpected(err, expected) {
			span.SetStatus(codes.Error, "operation failed")
		}
	}
	span.End()
}

func isExpected(err error, expected []error) bool {
	for _, target := range expected {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
