package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

func TestNewFallsBackToNoops(t *testing.T) {
	tel := New(Parts{})

	require.NotNil(t, tel.Tracer())
	require.NotNil(t, tel.Logger())
	assert.NotPanics(t, func() {
		tel.Metrics().Counter(observability.MUnitsSold).Add(1)
		tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.1)
	})
}

func TestNewResolvesRegisteredInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.Instruments(prometrics.NewWithRegisterer(reg, "minishop", "checkout"))
	tel := New(Parts{Counters: counters, Histograms: histograms})

	tel.Metrics().Counter(observability.MSettlementEvents).Add(1,
		observability.L("provider", "simulated"), observability.L("outcome", "applied"))

	n, err := testutil.GatherAndCount(reg, "minishop_checkout_settlement_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotPanics(t, func() {
		tel.Metrics().Counter(observability.MetricKey("unknown_total")).Add(1)
	})
}
