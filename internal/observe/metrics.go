// Package observe provides application-wide observability primitives for
// LivePrompt: OpenTelemetry metrics, structured logging helpers, and the
// Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all LivePrompt metrics.
const meterName = "github.com/liveprompt/liveprompt"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SendDuration tracks the latency of a single audio chunk send on the
	// live transport.
	SendDuration metric.Float64Histogram

	// ConnectDuration tracks how long session establishment takes.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// AudioChunks counts audio chunks pushed to the live transport.
	AudioChunks metric.Int64Counter

	// AudioBytesDropped counts PCM bytes discarded by retention-cap
	// truncation in the chunker.
	AudioBytesDropped metric.Int64Counter

	// TurnsCompleted counts completed conversation turns.
	TurnsCompleted metric.Int64Counter

	// ReconnectAttempts counts reconnection attempts. Use with attribute:
	//   attribute.String("status", "success"|"failure")
	ReconnectAttempts metric.Int64Counter

	// SessionErrors counts session-level errors. Use with attribute:
	//   attribute.String("kind", ...)
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for realtime-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SendDuration, err = m.Float64Histogram("liveprompt.audio.send.duration",
		metric.WithDescription("Latency of one audio chunk send on the live transport."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("liveprompt.session.connect.duration",
		metric.WithDescription("Latency of live session establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioChunks, err = m.Int64Counter("liveprompt.audio.chunks",
		metric.WithDescription("Total audio chunks pushed to the live transport."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesDropped, err = m.Int64Counter("liveprompt.audio.bytes_dropped",
		metric.WithDescription("Total PCM bytes discarded by retention-cap truncation."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("liveprompt.session.turns_completed",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("liveprompt.session.reconnect_attempts",
		metric.WithDescription("Total reconnection attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("liveprompt.session.errors",
		metric.WithDescription("Total session-level errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("liveprompt.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("liveprompt.http.request.duration",
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

// RecordReconnectAttempt records one reconnection attempt with its outcome.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, status string) {
	m.ReconnectAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSessionError records a session-level error counter increment.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
