// Package metrics provides Prometheus metrics collection for the futures
// trading agent. It defines and manages all cycle, decision, order, and
// system-health metrics exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading agent.
type Metrics struct {
	// Cycle metrics
	CyclesTotal     prometheus.Counter   // Total number of scheduler cycles completed
	CycleDuration   prometheus.Histogram // Wall-clock duration of one full cycle
	SnapshotLatency prometheus.Histogram // Duration of the snapshot assembly phase
	LLMLatency      prometheus.Histogram // Duration of the LLM analysis call

	// Decision metrics
	DecisionsExecuted prometheus.Counter // Decisions that passed the gate and were executed
	DecisionsHeld      prometheus.Counter // Decisions normalized to hold
	DecisionsRejected  prometheus.Counter // Decisions rejected by the safety gate
	AnalysisDegraded   prometheus.Counter // LLM responses that parsed as partial/degraded

	// Order metrics
	OrdersFilled           prometheus.Counter   // Orders that reached a filled terminal state
	OrdersFailed           prometheus.Counter   // Orders that reached a failed terminal state
	OrderRetries           prometheus.Counter   // Total number of order placement retries
	OrderExecutionDuration prometheus.Histogram // Duration of order execution attempts

	// Reconciliation metrics
	OrphanOrdersCancelled prometheus.Counter // Protective orders cancelled by the reconciler

	// System metrics
	ActivePositions prometheus.Gauge  // Number of non-zero positions across configured symbols
	ErrorsTotal     prometheus.Counter // Total number of errors encountered
	AlarmsTotal     prometheus.Counter // Total number of alarm records written
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cycles_total",
			Help: "Total number of scheduler cycles completed",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cycle_duration_seconds",
			Help:    "Wall-clock duration of one full analysis cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		SnapshotLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapshot_latency_seconds",
			Help:    "Duration of the snapshot assembly phase",
			Buckets: prometheus.DefBuckets,
		}),
		LLMLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_latency_seconds",
			Help:    "Duration of the LLM analysis call",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		DecisionsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_executed_total",
			Help: "Decisions that passed the gate and were submitted to the executor",
		}),
		DecisionsHeld: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_held_total",
			Help: "Decisions normalized to hold",
		}),
		DecisionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_rejected_total",
			Help: "Decisions rejected by the safety gate",
		}),
		AnalysisDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "analysis_degraded_total",
			Help: "LLM responses that parsed as partial/degraded",
		}),
		OrdersFilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_filled_total",
			Help: "Orders that reached a filled terminal state",
		}),
		OrdersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Orders that reached a failed terminal state",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order placement retries",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of order execution attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		OrphanOrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "orphan_orders_cancelled_total",
			Help: "Protective orders cancelled by the reconciler's orphan sweep",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of non-zero positions across configured symbols",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
		AlarmsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alarms_total",
			Help: "Total number of alarm records written",
		}),
	}
}

// UpdatePositions updates the active positions gauge based on current
// position sizes keyed by symbol.
func (m *Metrics) UpdatePositions(positions map[string]float64) {
	count := 0
	for _, pos := range positions {
		if pos != 0 {
			count++
		}
	}
	m.ActivePositions.Set(float64(count))
}
