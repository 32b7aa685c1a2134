package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// Legacy interfaces for compatibility
type Counter = MetricsCounter
type Gauge = MetricsGauge
type Histogram = MetricsHistogram

// MetricsWrapper provides a simple interface for the scheduler, executor,
// and reconciler to record metrics without depending on concrete
// prometheus types.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) CyclesTotal() MetricsCounter {
	return &CounterWrapper{w.m.CyclesTotal}
}

func (w *MetricsWrapper) CycleDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.CycleDuration}
}

func (w *MetricsWrapper) SnapshotLatency() MetricsHistogram {
	return &HistogramWrapper{w.m.SnapshotLatency}
}

func (w *MetricsWrapper) LLMLatency() MetricsHistogram {
	return &HistogramWrapper{w.m.LLMLatency}
}

func (w *MetricsWrapper) DecisionsExecutedInc() {
	w.m.DecisionsExecuted.Inc()
}

func (w *MetricsWrapper) DecisionsHeldInc() {
	w.m.DecisionsHeld.Inc()
}

func (w *MetricsWrapper) DecisionsRejectedInc() {
	w.m.DecisionsRejected.Inc()
}

func (w *MetricsWrapper) AnalysisDegradedInc() {
	w.m.AnalysisDegraded.Inc()
}

func (w *MetricsWrapper) OrdersFilledInc() {
	w.m.OrdersFilled.Inc()
}

func (w *MetricsWrapper) OrdersFailedInc() {
	w.m.OrdersFailed.Inc()
}

func (w *MetricsWrapper) OrderRetriesInc() {
	w.m.OrderRetries.Inc()
}

func (w *MetricsWrapper) OrderExecutionDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.OrderExecutionDuration}
}

func (w *MetricsWrapper) OrphanOrdersCancelledInc() {
	w.m.OrphanOrdersCancelled.Inc()
}

func (w *MetricsWrapper) ErrorsTotalInc() {
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) AlarmsTotalInc() {
	w.m.AlarmsTotal.Inc()
}

func (w *MetricsWrapper) UpdatePositions(positions map[string]float64) {
	w.m.UpdatePositions(positions)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
