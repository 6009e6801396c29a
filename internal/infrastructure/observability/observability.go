// Package observability assembles the tracer, logger and metric instruments into one provider.
package observability

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// Parts are the concrete backends; any nil part falls back to its no-op.
type Parts struct {
	Tracer     observability.Tracer
	Logger     observability.Logger
	Counters   map[observability.MetricKey]observability.Counter
	Histograms map[observability.MetricKey]observability.Histogram
}

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// instrumentSet resolves keys registered at startup; an unregistered key yields a no-op.
type instrumentSet struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instrumentSet) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m instrumentSet) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

func New(p Parts) observability.Observability {
	out := &provider{
		tracer:  p.Tracer,
		logger:  p.Logger,
		metrics: observability.NopMetrics(),
	}
	if out.tracer == nil {
		out.tracer = observability.NopTracer()
	}
	if out.logger == nil {
		out.logger = observability.NopLogger()
	}
	if len(p.Counters) > 0 || len(p.Histograms) > 0 {
		set := instrumentSet{
			counters:   make(map[observability.MetricKey]observability.Counter, len(p.Counters)),
			histograms: make(map[observability.MetricKey]observability.Histogram, len(p.Histograms)),
		}
		for k, c := range p.Counters {
			if c != nil {
				set.counters[k] = c
			}
		}
		for k, h := range p.Histograms {
			if h != nil {
				set.histograms[k] = h
			}
		}
		out.metrics = set
	}
	return out
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }
