package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SettlementMetrics tracks wallet settlement outcomes.
type SettlementMetrics struct {
	credited       *prometheus.CounterVec
	creditedAmount *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	credited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "lines_credited_total",
		Help:      "Order lines credited to vendor wallets.",
	}, []string{"currency"})
	creditedAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "credited_amount_total",
		Help:      "Net amount credited to vendor wallets.",
	}, []string{"currency"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "lines_skipped_total",
		Help:      "Eligible lines skipped, by reason.",
	}, []string{"reason"})
	reconciliation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciliation",
		Name:      "items_enqueued_total",
		Help:      "Items queued for manual reconciliation, by source.",
	}, []string{"source"})
	reg.MustRegister(credited, creditedAmount, skipped, reconciliation)
	return &SettlementMetrics{
		credited:       credited,
		creditedAmount: creditedAmount,
		skipped:        skipped,
		reconciliation: reconciliation,
	}
}

// ObserveCredit records one credited line and its net amount.
func (s *SettlementMetrics) ObserveCredit(currency string, net decimal.Decimal) {
	if s == nil || s.credited == nil {
		return
	}
	label := normalizeLabel(currency)
	s.credited.WithLabelValues(label).Inc()
	s.creditedAmount.WithLabelValues(label).Add(net.InexactFloat64())
}

func (s *SettlementMetrics) IncSkipped(reason string) {
	if s == nil || s.skipped == nil {
		return
	}
	s.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (s *SettlementMetrics) IncReconciliation(source string) {
	if s == nil || s.reconciliation == nil {
		return
	}
	s.reconciliation.WithLabelValues(normalizeLabel(source)).Inc()
}

// WebhookMetrics counts inbound gateway callbacks.
type WebhookMetrics struct {
	received *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Gateway callbacks received, by source and outcome.",
	}, []string{"source", "outcome"})
	reg.MustRegister(received)
	return &WebhookMetrics{received: received}
}

// Observe records one callback; outcome is applied, duplicate, ignored or failed.
func (w *WebhookMetrics) Observe(source, outcome string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}
