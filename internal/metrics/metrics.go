// Package metrics wraps the Prometheus collectors for the transfer saga, the
// ledger retry queue, event fanout and notification delivery.
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Saga outcome labels.
const (
	OutcomeApproved            = "approved"
	OutcomeRejected            = "rejected"
	OutcomeCancelled           = "cancelled"
	OutcomeInvalidTransition   = "invalid_transition"
	OutcomeInsufficientFunds   = "insufficient_funds"
	OutcomeTransferFailed      = "transfer_failed"
	OutcomeCompensationFailure = "compensation_failure"
	OutcomeInternalError       = "error"
)

type Collector struct {
	registry *prometheus.Registry

	sagaOutcomes   *prometheus.CounterVec
	compensations  *prometheus.CounterVec
	ledgerPending  prometheus.Gauge
	ledgerRetries  *prometheus.CounterVec
	fanoutDropped  *prometheus.CounterVec
	fanoutDisconn  *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	noApprover     prometheus.Counter
	relayFailures  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "funds"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.sagaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "outcomes_total",
			Help:      "Fund request operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	c.compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "compensations_total",
			Help:      "Debit reversals after a failed credit, by result",
		},
		[]string{"result"},
	)

	c.ledgerPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retry_pending",
			Help:      "Ledger records waiting to be re-appended",
		},
	)

	c.ledgerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retry_attempts_total",
			Help:      "Ledger append retry attempts, by result",
		},
		[]string{"result"},
	)

	c.fanoutDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "dropped_total",
			Help:      "Events dropped from full subscriber buffers",
		},
		[]string{"topic"},
	)

	c.fanoutDisconn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "disconnects_total",
			Help:      "Subscribers closed because their buffer overflowed",
		},
		[]string{"topic"},
	)

	c.notifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notifications that could not be delivered",
		},
		[]string{"reason"},
	)

	c.noApprover = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "no_approver_total",
			Help:      "Fund requests created while no parent could be found to notify",
		},
	)

	c.relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "failures_total",
			Help:      "Events a broker relay failed to forward",
		},
		[]string{"relay"},
	)

	c.registry.MustRegister(
		c.sagaOutcomes,
		c.compensations,
		c.ledgerPending,
		c.ledgerRetries,
		c.fanoutDropped,
		c.fanoutDisconn,
		c.notifyFailures,
		c.noApprover,
		c.relayFailures,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSagaOutcome(operation, outcome string) {
	if c == nil {
		return
	}
	c.sagaOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RecordCompensation(err error) {
	if c == nil {
		return
	}
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	c.compensations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordLedgerPending(n int) {
	if c == nil {
		return
	}
	c.ledgerPending.Set(float64(n))
}

func (c *Collector) RecordLedgerRetry(err error) {
	if c == nil {
		return
	}
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	c.ledgerRetries.WithLabelValues(result).Inc()
}

func (c *Collector) RecordFanoutDrop(topic string) {
	if c == nil {
		return
	}
	c.fanoutDropped.WithLabelValues(topic).Inc()
}

func (c *Collector) RecordFanoutDisconnect(topic string) {
	if c == nil {
		return
	}
	c.fanoutDisconn.WithLabelValues(topic).Inc()
}

func (c *Collector) RecordNotificationFailure(reason string) {
	if c == nil {
		return
	}
	c.notifyFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordNoApprover() {
	if c == nil {
		return
	}
	c.noApprover.Inc()
}

func (c *Collector) RecordRelayFailure(relay string) {
	if c == nil {
		return
	}
	c.relayFailures.WithLabelValues(relay).Inc()
}
