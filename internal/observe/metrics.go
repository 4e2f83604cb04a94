// Package observe provides application-wide observability primitives for
// voxlink: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Setup] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxlink metrics.
const meterName = "github.com/voxlink-ai/voxlink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks recognizer call latency. Use with
	// attributes:
	//   attribute.String("kind", "partial"|"final"|"batch"),
	//   attribute.String("strategy", ...)
	TranscriptionDuration metric.Float64Histogram

	// SinkDuration tracks downstream sink latency (agent, tts) on the client.
	SinkDuration metric.Float64Histogram

	// --- Counters ---

	// FramesReceived counts audio_frame messages accepted by sessions.
	FramesReceived metric.Int64Counter

	// PartialsEmitted counts partial replies sent.
	PartialsEmitted metric.Int64Counter

	// FinalsEmitted counts final/result replies sent. Use with attribute:
	//   attribute.String("mode", "batch"|"streaming")
	FinalsEmitted metric.Int64Counter

	// NoiseRejected counts transcripts rejected by the hallucination filter.
	NoiseRejected metric.Int64Counter

	// PartialsSkipped counts partial ticks dropped because the recognizer
	// worker was busy.
	PartialsSkipped metric.Int64Counter

	// BackendErrors counts recognizer failures. Use with attribute:
	//   attribute.String("backend", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live websocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for recognizer latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("voxlink.transcription.duration",
		metric.WithDescription("Latency of recognizer calls by kind and strategy."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SinkDuration, err = m.Float64Histogram("voxlink.sink.duration",
		metric.WithDescription("Latency of downstream sink calls by sink."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesReceived, err = m.Int64Counter("voxlink.frames.received",
		metric.WithDescription("Total audio frames accepted by sessions."),
	); err != nil {
		return nil, err
	}
	if met.PartialsEmitted, err = m.Int64Counter("voxlink.partials.emitted",
		metric.WithDescription("Total partial replies sent."),
	); err != nil {
		return nil, err
	}
	if met.FinalsEmitted, err = m.Int64Counter("voxlink.finals.emitted",
		metric.WithDescription("Total final replies sent by mode."),
	); err != nil {
		return nil, err
	}
	if met.NoiseRejected, err = m.Int64Counter("voxlink.noise.rejected",
		metric.WithDescription("Total transcripts rejected as hallucinations."),
	); err != nil {
		return nil, err
	}
	if met.PartialsSkipped, err = m.Int64Counter("voxlink.partials.skipped",
		metric.WithDescription("Total partial ticks dropped while the recognizer was busy."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("voxlink.backend.errors",
		metric.WithDescription("Total recognizer failures by backend."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlink.active_sessions",
		metric.WithDescription("Number of live websocket sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlink.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordTranscription records one recognizer call with its latency.
func (m *Metrics) RecordTranscription(ctx context.Context, kind, strategy string, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("strategy", strategy),
		),
	)
}

// RecordFinal records one emitted final by delivery mode.
func (m *Metrics) RecordFinal(ctx context.Context, mode string) {
	m.FinalsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordBackendError records one recognizer failure.
func (m *Metrics) RecordBackendError(ctx context.Context, backend string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}
