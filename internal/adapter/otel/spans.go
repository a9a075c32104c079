package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "switchyard"

// StartDecideSpan starts a span for one routing decision.
func StartDecideSpan(ctx context.Context, callerID, toolContext string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route.decide",
		trace.WithAttributes(
			attribute.String("caller.id", callerID),
			attribute.String("tool.context", toolContext),
		),
	)
}

// StartRecordSpan starts a span for booking one usage event.
func StartRecordSpan(ctx context.Context, userID string, provider string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "usage.record",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("provider", provider),
		),
	)
}

// StartProbeSpan starts a span for one provider liveness probe.
func StartProbeSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provider.probe",
		trace.WithAttributes(attribute.String("provider", provider)),
	)
}
