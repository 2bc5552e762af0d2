package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts payment lifecycle events.
type PaymentMetrics struct {
	initiated      *prometheus.CounterVec
	callbacks      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	grants         *prometheus.CounterVec
	sideEffects    *prometheus.CounterVec
	amountMismatch prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on reg. A nil registerer yields no-op metrics.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		initiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_intents_initiated_total",
			Help: "STK push initiations by result (accepted, validation, gateway, error).",
		}, []string{"result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_callbacks_total",
			Help: "Gateway callback deliveries by reconcile outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_intent_transitions_total",
			Help: "Terminal intent transitions by status and source.",
		}, []string{"status", "source"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_entitlement_grants_total",
			Help: "Entitlement grant attempts by result.",
		}, []string{"result"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_side_effect_failures_total",
			Help: "Failed secondary effects that did not fail the primary operation.",
		}, []string{"effect"}),
		amountMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stkpush_amount_mismatch_total",
			Help: "Confirmed callbacks whose amount differs from the recorded intent amount.",
		}),
	}
	reg.MustRegister(m.initiated, m.callbacks, m.transitions, m.grants, m.sideEffects, m.amountMismatch)
	return m
}

func (m *PaymentMetrics) IncInitiated(result string) {
	if m == nil || m.initiated == nil {
		return
	}
	m.initiated.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) IncCallback(outcome string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncTransition(status, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

func (m *PaymentMetrics) IncGrant(result string) {
	if m == nil || m.grants == nil {
		return
	}
	m.grants.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) IncSideEffectFailure(effect string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(effect)).Inc()
}

func (m *PaymentMetrics) IncAmountMismatch() {
	if m == nil || m.amountMismatch == nil {
		return
	}
	m.amountMismatch.Inc()
}
