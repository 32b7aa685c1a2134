package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	cyclesCounter := wrapper.CyclesTotal()
	if cyclesCounter == nil {
		t.Fatal("CyclesTotal returned nil counter")
	}

	initialValue := testutil.ToFloat64(metrics.CyclesTotal)
	if initialValue != 0 {
		t.Errorf("Expected initial counter value 0, got %f", initialValue)
	}

	cyclesCounter.Inc()
	newValue := testutil.ToFloat64(metrics.CyclesTotal)
	if newValue != 1 {
		t.Errorf("Expected counter value 1 after increment, got %f", newValue)
	}

	cyclesCounter.Inc()
	finalValue := testutil.ToFloat64(metrics.CyclesTotal)
	if finalValue != 2 {
		t.Errorf("Expected counter value 2 after second increment, got %f", finalValue)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge_ops", Help: "test"})
	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(123.45)
	value := testutil.ToFloat64(gauge)
	if value != 123.45 {
		t.Errorf("Expected gauge value 123.45, got %f", value)
	}

	wrapper.Add(10.55)
	newValue := testutil.ToFloat64(gauge)
	expected := 123.45 + 10.55
	if newValue != expected {
		t.Errorf("Expected gauge value %f after add, got %f", expected, newValue)
	}

	wrapper.Add(-20.0)
	finalValue := testutil.ToFloat64(gauge)
	expected = 123.45 + 10.55 - 20.0
	if finalValue != expected {
		t.Errorf("Expected gauge value %f after negative add, got %f", expected, finalValue)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	latencyHist := wrapper.LLMLatency()
	if latencyHist == nil {
		t.Fatal("LLMLatency returned nil histogram")
	}

	testValues := []float64{0.5, 1.0, 2.5, 5.0, 10.0}
	for _, value := range testValues {
		latencyHist.Observe(value)
	}

	var m dto.Metric
	if err := metrics.LLMLatency.Write(&m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	count := float64(m.GetHistogram().GetSampleCount())
	if count != float64(len(testValues)) {
		t.Errorf("Expected %d observations, got %f", len(testValues), count)
	}
}

func TestMetricsWrapper_UpdatePositions(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	positions := map[string]float64{
		"BTCUSDT": 0.5,
		"ETHUSDT": -0.3,
		"ADAUSDT": 0.0,
	}

	wrapper.UpdatePositions(positions)

	activeCount := testutil.ToFloat64(metrics.ActivePositions)
	expected := 2.0
	if activeCount != expected {
		t.Errorf("Expected %f active positions, got %f", expected, activeCount)
	}
}

func TestMetricsWrapper_DecisionAndOrderCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.DecisionsExecutedInc()
	if v := testutil.ToFloat64(metrics.DecisionsExecuted); v != 1 {
		t.Errorf("Expected 1 decision executed, got %f", v)
	}

	wrapper.DecisionsHeldInc()
	if v := testutil.ToFloat64(metrics.DecisionsHeld); v != 1 {
		t.Errorf("Expected 1 decision held, got %f", v)
	}

	wrapper.DecisionsRejectedInc()
	if v := testutil.ToFloat64(metrics.DecisionsRejected); v != 1 {
		t.Errorf("Expected 1 decision rejected, got %f", v)
	}

	wrapper.AnalysisDegradedInc()
	if v := testutil.ToFloat64(metrics.AnalysisDegraded); v != 1 {
		t.Errorf("Expected 1 degraded analysis, got %f", v)
	}

	wrapper.OrdersFilledInc()
	if v := testutil.ToFloat64(metrics.OrdersFilled); v != 1 {
		t.Errorf("Expected 1 order filled, got %f", v)
	}

	wrapper.OrdersFailedInc()
	if v := testutil.ToFloat64(metrics.OrdersFailed); v != 1 {
		t.Errorf("Expected 1 order failed, got %f", v)
	}

	wrapper.OrderRetriesInc()
	if v := testutil.ToFloat64(metrics.OrderRetries); v != 1 {
		t.Errorf("Expected 1 order retry, got %f", v)
	}

	wrapper.OrphanOrdersCancelledInc()
	if v := testutil.ToFloat64(metrics.OrphanOrdersCancelled); v != 1 {
		t.Errorf("Expected 1 orphan order cancelled, got %f", v)
	}

	wrapper.ErrorsTotalInc()
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected 1 error, got %f", v)
	}

	wrapper.AlarmsTotalInc()
	if v := testutil.ToFloat64(metrics.AlarmsTotal); v != 1 {
		t.Errorf("Expected 1 alarm, got %f", v)
	}
}

func TestMetricsWrapper_MultipleIncrement(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	numIncrements := 10
	for i := 0; i < numIncrements; i++ {
		wrapper.CyclesTotal().Inc()
	}

	cycles := testutil.ToFloat64(metrics.CyclesTotal)
	if cycles != float64(numIncrements) {
		t.Errorf("Expected %d cycles, got %f", numIncrements, cycles)
	}
}

func TestCounterWrapper_DirectUsage(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter for unit tests",
	})

	wrapper := &CounterWrapper{c: counter}

	wrapper.Inc()
	value := testutil.ToFloat64(counter)
	if value != 1 {
		t.Errorf("Expected counter value 1, got %f", value)
	}
}

func TestGaugeWrapper_DirectUsage(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge for unit tests",
	})

	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(42.0)
	value := testutil.ToFloat64(gauge)
	if value != 42.0 {
		t.Errorf("Expected gauge value 42.0, got %f", value)
	}

	wrapper.Add(8.0)
	newValue := testutil.ToFloat64(gauge)
	if newValue != 50.0 {
		t.Errorf("Expected gauge value 50.0 after add, got %f", newValue)
	}
}

func TestHistogramWrapper_DirectUsage(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "Test histogram for unit tests",
		Buckets: prometheus.DefBuckets,
	})

	wrapper := &HistogramWrapper{h: histogram}

	wrapper.Observe(0.5)
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.DecisionsExecutedInc()
				wrapper.LLMLatency().Observe(0.01)
				wrapper.ErrorsTotalInc()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	executed := testutil.ToFloat64(metrics.DecisionsExecuted)
	errs := testutil.ToFloat64(metrics.ErrorsTotal)

	expected := 1000.0
	if executed != expected {
		t.Errorf("Expected %f decisions executed after concurrent access, got %f", expected, executed)
	}
	if errs != expected {
		t.Errorf("Expected %f errors after concurrent access, got %f", expected, errs)
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	wrapper := &MetricsWrapper{m: nil}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when accessing nil metrics")
		}
	}()

	wrapper.DecisionsExecutedInc()
}

func BenchmarkMetricsWrapper_DecisionsExecutedInc(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.DecisionsExecutedInc()
	}
}

func BenchmarkMetricsWrapper_LLMLatencyObserve(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)
	hist := wrapper.LLMLatency()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hist.Observe(0.01)
	}
}

func BenchmarkMetricsWrapper_UpdatePositions(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	positions := map[string]float64{
		"BTCUSDT": 0.5,
		"ETHUSDT": -0.3,
		"ADAUSDT": 0.0,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.UpdatePositions(positions)
	}
}
