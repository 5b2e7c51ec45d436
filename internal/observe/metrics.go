// Package observe provides application-wide observability primitives for
// MiniExplorer: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all MiniExplorer metrics.
const meterName = "github.com/MrWong99/miniexplorer"

// Stage names recorded on [Metrics.StageDuration].
const (
	StageEncode = "encode"
	StageUpload = "upload"
	StageCreate = "create"
	StageAwait  = "await"
	StageFetch  = "fetch"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks a full conversation turn from end of speech to
	// reply. Use with attribute.String("status", ...).
	TurnDuration metric.Float64Histogram

	// StageDuration tracks the individual steps of a turn. Use with
	// attribute.String("stage", ...), see the Stage constants.
	StageDuration metric.Float64Histogram

	// --- Counters ---

	// StateTransitions counts engine state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// Segments counts closed speech segments. Use with
	// attribute.String("outcome", ...): "clip", "forced", "empty", "error" or
	// "discarded".
	Segments metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts failed chat round trips. Use with
	// attribute.String("kind", ...).
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// VADThreshold is the threshold chosen by the last calibration.
	VADThreshold metric.Float64Gauge

	// ActiveSessions tracks the number of started mode sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control server requests. Attributes:
	// "method", "route" (the mux pattern) and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for backend
// round trips, which are dominated by multi-second polling.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 7.5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("miniexplorer.turn.duration",
		metric.WithDescription("Latency of a conversation turn from end of speech to reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("miniexplorer.stage.duration",
		metric.WithDescription("Latency of a single turn stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.StateTransitions, err = m.Int64Counter("miniexplorer.state.transitions",
		metric.WithDescription("Total engine state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("miniexplorer.segments",
		metric.WithDescription("Total closed speech segments by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("miniexplorer.backend.errors",
		metric.WithDescription("Total failed chat round trips by error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.VADThreshold, err = m.Float64Gauge("miniexplorer.vad.threshold",
		metric.WithDescription("Voice activity threshold chosen by the last calibration."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("miniexplorer.active_sessions",
		metric.WithDescription("Number of started mode sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("miniexplorer.http.request.duration",
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

// RecordTransition records one engine state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordStage records the duration of one turn stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordTurn records the duration and status of a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSegment counts a closed segment.
func (m *Metrics) RecordSegment(ctx context.Context, outcome string) {
	m.Segments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBackendError counts a failed round trip.
func (m *Metrics) RecordBackendError(ctx context.Context, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
