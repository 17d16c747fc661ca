// Package observe provides application-wide observability primitives for
// trafficear: OpenTelemetry metrics, tracing, trace-aware structured logging
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all trafficear metrics.
const meterName = "github.com/MrWong99/trafficear"

// Cycle status attribute values.
const (
	CycleOK      = "ok"
	CycleSkipped = "skipped"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Classification loop ---

	// ClassifyDuration tracks the latency of one classifier adapter call.
	ClassifyDuration metric.Float64Histogram

	// Cycles counts classification cycles. Use with attributes:
	//   attribute.String("stream", ...), attribute.String("status", ...)
	Cycles metric.Int64Counter

	// AdapterFailures counts failed classifier calls. Use with attributes:
	//   attribute.String("stream", ...), attribute.String("reason", ...)
	AdapterFailures metric.Int64Counter

	// Decisions counts emitted decisions. Use with attributes:
	//   attribute.String("stream", ...), attribute.String("class", ...)
	Decisions metric.Int64Counter

	// PositiveStreak and NegativeStreak report the current streak counters
	// of each stream.
	PositiveStreak metric.Int64Gauge
	NegativeStreak metric.Int64Gauge

	// ActiveStreams tracks the number of running classification streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- Sinks ---

	// SinkErrors counts decisions a sink failed to deliver. Use with
	// attribute: attribute.String("sink", ...)
	SinkErrors metric.Int64Counter

	// HubSubscribers tracks connected websocket decision subscribers.
	HubSubscribers metric.Int64UpDownCounter

	// --- Resilience ---

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Dataset generation ---

	// DatasetFiles counts processed input files. Use with attribute:
	//   attribute.String("status", ...)
	DatasetFiles metric.Int64Counter

	// DatasetFrames counts frames written. Use with attribute:
	//   attribute.String("class", ...)
	DatasetFrames metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-cycle inference latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ClassifyDuration, err = m.Float64Histogram("trafficear.classify.duration",
		metric.WithDescription("Latency of one classifier adapter call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Cycles, err = m.Int64Counter("trafficear.cycles",
		metric.WithDescription("Total classification cycles by stream and status."),
	); err != nil {
		return nil, err
	}
	if met.AdapterFailures, err = m.Int64Counter("trafficear.adapter.failures",
		metric.WithDescription("Total failed classifier calls by stream and reason."),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("trafficear.decisions",
		metric.WithDescription("Total emitted decisions by stream and class."),
	); err != nil {
		return nil, err
	}
	if met.PositiveStreak, err = m.Int64Gauge("trafficear.streak.positive",
		metric.WithDescription("Current positive streak per stream."),
	); err != nil {
		return nil, err
	}
	if met.NegativeStreak, err = m.Int64Gauge("trafficear.streak.negative",
		metric.WithDescription("Current negative streak per stream."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("trafficear.active_streams",
		metric.WithDescription("Number of running classification streams."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("trafficear.sink.errors",
		metric.WithDescription("Total decisions a sink failed to deliver."),
	); err != nil {
		return nil, err
	}
	if met.HubSubscribers, err = m.Int64UpDownCounter("trafficear.hub.subscribers",
		metric.WithDescription("Number of connected websocket decision subscribers."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("trafficear.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}
	if met.DatasetFiles, err = m.Int64Counter("trafficear.dataset.files",
		metric.WithDescription("Total dataset input files by status."),
	); err != nil {
		return nil, err
	}
	if met.DatasetFrames, err = m.Int64Counter("trafficear.dataset.frames",
		metric.WithDescription("Total dataset frames written by class."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("trafficear.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCycle records one classification cycle with the given status.
func (m *Metrics) RecordCycle(ctx context.Context, stream, status string) {
	m.Cycles.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("status", status),
		),
	)
}

// RecordAdapterFailure records a failed classifier call.
func (m *Metrics) RecordAdapterFailure(ctx context.Context, stream, reason string) {
	m.AdapterFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("reason", reason),
		),
	)
}

// RecordDecision records an emitted decision. label is used as the class
// attribute when set; otherwise the class index is.
func (m *Metrics) RecordDecision(ctx context.Context, stream string, class int, label string) {
	if label == "" {
		label = strconv.Itoa(class)
	}
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("class", label),
		),
	)
}

// RecordStreaks reports the current streak counters of a stream.
func (m *Metrics) RecordStreaks(ctx context.Context, stream string, positive, negative int) {
	attrs := metric.WithAttributes(attribute.String("stream", stream))
	m.PositiveStreak.Record(ctx, int64(positive), attrs)
	m.NegativeStreak.Record(ctx, int64(negative), attrs)
}

// RecordSinkError records a sink delivery failure.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordDatasetFile records one processed dataset input file.
func (m *Metrics) RecordDatasetFile(ctx context.Context, status string) {
	m.DatasetFiles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDatasetFrames records n frames written for class.
func (m *Metrics) RecordDatasetFrames(ctx context.Context, class string, n int) {
	m.DatasetFrames.Add(ctx, int64(n), metric.WithAttributes(attribute.String("class", class)))
}
