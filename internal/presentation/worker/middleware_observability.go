package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// keyed is implemented by events that carry the id of the aggregate they describe.
type keyed interface {
	AggregateID() string
}

// EventContext returns a bus decorator that gives every delivery its own logger:
// a fresh event_id, the event name, the order id when known, and trace ids when the publisher was traced.
func EventContext(tel observability.Observability) func(context.Context, domoutbox.Event) context.Context {
	base := observability.LoggerOf(tel, "worker")
	return func(ctx context.Context, e domoutbox.Event) context.Context {
		attrs := map[string]string{"event": e.EventName()}
		if k, ok := e.(keyed); ok {
			attrs["order_id"] = k.AggregateID()
		}
		sc := trace.SpanContextFromContext(ctx)
		return WithEventContext(ctx, base, sc.TraceID(), sc.SpanID(), attrs)
	}
}

// WithEventContext injects an event-scoped logger for background executions.
// attrs must stay low-cardinality apart from event_id and order_id.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("parent_span_id", spanID.String()))
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}
