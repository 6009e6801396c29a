package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instruments holds the RED instruments every use case reports to. Build it once at construction.
type Instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	metrics := observability.MetricsOf(tel)
	return Instruments{
		tracer:       observability.TracerOf(tel),
		log:          observability.LoggerOf(tel, service),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (i Instruments) Logger() observability.Logger { return i.log }

// Run is one traced execution. Callers set Outcome/Status as they go and call End exactly once.
type Run struct {
	Outcome string
	Status  string

	useCase string
	start   time.Time
	ctx     context.Context
	span    trace.Span
	log     observability.Logger
	fields  []observability.Field
	inst    Instruments
}

// Begin starts the span for useCase and returns a context carrying a use_case scoped logger.
func (i Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := i.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, i.log, observability.F("use_case", useCase))
	return ctx, &Run{
		Outcome: "success",
		Status:  "OK",
		useCase: useCase,
		start:   time.Now(),
		ctx:     ctx,
		span:    span,
		log:     logger,
		inst:    i,
	}
}

// Fail marks the run as an error with the given status text.
func (r *Run) Fail(status string) {
	r.Outcome, r.Status = "error", status
}

func (r *Run) Span() trace.Span { return r.span }

func (r *Run) Logger() observability.Logger { return r.log }

// Field adds a field to the use_case_done line.
func (r *Run) Field(k string, v any) {
	r.fields = append(r.fields, observability.F(k, v))
}

func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.Status)
		} else {
			r.span.SetStatus(codes.Ok, r.Status)
		}
		r.span.End()
	}

	r.inst.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.Outcome),
	)
	r.inst.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.Outcome),
		observability.F("status", r.Status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	if r.Outcome == "error" && err != nil {
		r.log.Warn("use_case_done", fields...)
		return
	}
	r.log.Info("use_case_done", fields...)
}
