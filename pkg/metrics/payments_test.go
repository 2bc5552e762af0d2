package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncCallback("applied")
	m.IncCallback("applied")
	m.IncCallback("duplicate")
	m.IncSideEffectFailure("dedup_delete")
	m.IncAmountMismatch()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	applied, err := fetchCounterValue(mfs, "stkpush_callbacks_total", "outcome", "applied")
	require.NoError(t, err)
	require.Equal(t, float64(2), applied)

	failures, err := fetchCounterValue(mfs, "stkpush_side_effect_failures_total", "effect", "dedup_delete")
	require.NoError(t, err)
	require.Equal(t, float64(1), failures)

	mismatch := findMetricFamily(mfs, "stkpush_amount_mismatch_total")
	require.NotNil(t, mismatch)
	require.Equal(t, float64(1), mismatch.GetMetric()[0].GetCounter().GetValue())
}

func TestNilPaymentMetricsAreNoops(t *testing.T) {
	var m *PaymentMetrics
	m.IncCallback("applied")
	m.IncGrant("granted")

	NewPaymentMetrics(nil).IncTransition("paid", "callback")
}
