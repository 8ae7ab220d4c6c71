package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Carrier holds W3C trace context as queue message attributes.
type Carrier map[string]string

func Inject(ctx context.Context) Carrier {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return Carrier(carrier)
}

func Extract(ctx context.Context, carrier Carrier) context.Context {
	if carrier["traceparent"] == "" {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier(carrier))
}

func StartMessageSpan(ctx context.Context, queue, messageID string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, "queue.handle."+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String("messaging.destination.name", queue),
		attribute.String("messaging.message.id", messageID),
	)
	return ctx, span
}

func StartClientSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("rpc.service", service), attribute.String("rpc.method", operation))
	return ctx, span
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
