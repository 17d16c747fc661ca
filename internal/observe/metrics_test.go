package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWith returns the value of the int64 sum data point carrying key=value.
func sumWith(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestClassifyDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ClassifyDuration.Record(ctx, 0.004)
	m.ClassifyDuration.Record(ctx, 0.012)

	met := findMetric(collect(t, reader), "trafficear.classify.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Errorf("data points = %+v, want one point with count 2", hist.DataPoints)
	}
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, "kerb-north", CycleOK)
	m.RecordCycle(ctx, "kerb-north", CycleOK)
	m.RecordCycle(ctx, "kerb-north", CycleSkipped)

	rm := collect(t, reader)
	if got := sumWith(t, rm, "trafficear.cycles", "status", CycleOK); got != 2 {
		t.Errorf("ok cycles = %d, want 2", got)
	}
	if got := sumWith(t, rm, "trafficear.cycles", "status", CycleSkipped); got != 1 {
		t.Errorf("skipped cycles = %d, want 1", got)
	}
}

func TestRecordDecision_LabelFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, "s", 1, "Truck")
	m.RecordDecision(ctx, "s", 3, "")

	rm := collect(t, reader)
	if got := sumWith(t, rm, "trafficear.decisions", "class", "Truck"); got != 1 {
		t.Errorf("Truck decisions = %d, want 1", got)
	}
	if got := sumWith(t, rm, "trafficear.decisions", "class", "3"); got != 1 {
		t.Errorf("class 3 decisions = %d, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAdapterFailure(ctx, "s", "timeout")
	m.RecordSinkError(ctx, "journal")
	m.RecordBreakerTransition(ctx, "classifier", "open")
	m.RecordDatasetFile(ctx, "ok")
	m.RecordDatasetFrames(ctx, "Truck", 19)

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"trafficear.adapter.failures", "reason", "timeout", 1},
		{"trafficear.sink.errors", "sink", "journal", 1},
		{"trafficear.breaker.transitions", "state", "open", 1},
		{"trafficear.dataset.files", "status", "ok", 1},
		{"trafficear.dataset.frames", "class", "Truck", 19},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sumWith(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordStreaks(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStreaks(ctx, "s", 3, 0)
	m.RecordStreaks(ctx, "s", 4, 0)

	met := findMetric(collect(t, reader), "trafficear.streak.positive")
	if met == nil {
		t.Fatal("metric not found")
	}
	g, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatal("metric is not a gauge")
	}
	if len(g.DataPoints) != 1 || g.DataPoints[0].Value != 4 {
		t.Errorf("data points = %+v, want last value 4", g.DataPoints)
	}
}

func TestUpDownCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveStreams.Add(ctx, 1)
	m.HubSubscribers.Add(ctx, 2)
	m.HubSubscribers.Add(ctx, -1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"trafficear.active_streams":  1,
		"trafficear.hub.subscribers": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) == 0 {
			t.Fatalf("metric %q has no sum data", name)
		}
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	met := findMetric(collect(t, reader), "trafficear.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Errorf("data points = %+v, want count 1", hist.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
