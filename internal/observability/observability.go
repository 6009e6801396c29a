package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the tracer, logger and metric instruments handed to use cases.
type Observability interface {
	Tracer() Tracer
	Logger() Logger
	Metrics() Metrics
}

type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

// Tracer is a thin wrapper to start spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Counter is a thin wrapper to add metrics.
type Counter interface {
	Add(delta float64, labels ...Label)
	Bind(labels ...Label) BoundCounter
}

type BoundCounter interface {
	Add(delta float64)
}

type Histogram interface {
	Observe(value float64, labels ...Label)
	Bind(labels ...Label) BoundHistogram
}

type BoundHistogram interface {
	Observe(value float64)
}

type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

// Logger is a thin wrapper to log messages.
type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type MetricKey string

// TracerOf returns the tracer of tel, or a no-op tracer when tel is nil.
func TracerOf(tel Observability) Tracer {
	if tel == nil {
		return NopTracer()
	}
	return tel.Tracer()
}

// LoggerOf returns the logger of tel bound to the service field.
func LoggerOf(tel Observability, service string) Logger {
	var l Logger = NopLogger()
	if tel != nil {
		l = tel.Logger()
	}
	return l.With(F("service", service))
}

// MetricsOf returns the metrics of tel, or no-op instruments when tel is nil.
func MetricsOf(tel Observability) Metrics {
	if tel == nil {
		return NopMetrics()
	}
	return tel.Metrics()
}
