// Package observe provides application-wide observability primitives for
// SoulCast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all SoulCast metrics.
const meterName = "github.com/soulcast-ai/soulcast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// LLMDuration tracks time from turn start to producer completion.
	LLMDuration metric.Float64Histogram

	// SynthesisDuration tracks backend synthesis execution latency, measured
	// from admission to resolution.
	SynthesisDuration metric.Float64Histogram

	// GateWait tracks time synthesis jobs spend queued before admission.
	GateWait metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency from first token to the
	// terminal event.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Use with attribute:
	//   attribute.String("status", "done"|"error"|"cancelled")
	Turns metric.Int64Counter

	// Bubbles counts bubbles opened across all turns.
	Bubbles metric.Int64Counter

	// SynthesisJobs counts resolved synthesis jobs. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"timeout")
	SynthesisJobs metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of turns currently streaming.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for narration-pipeline latencies.
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
	if met.LLMDuration, err = m.Float64Histogram("soulcast.llm.duration",
		metric.WithDescription("Time from turn start to producer completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("soulcast.synthesis.duration",
		metric.WithDescription("Backend synthesis execution latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GateWait, err = m.Float64Histogram("soulcast.synthesis.gate_wait",
		metric.WithDescription("Time synthesis jobs spend queued before admission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("soulcast.turn.duration",
		metric.WithDescription("End-to-end turn latency from first token to terminal event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("soulcast.turns",
		metric.WithDescription("Completed turns by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.Bubbles, err = m.Int64Counter("soulcast.bubbles",
		metric.WithDescription("Bubbles opened across all turns."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisJobs, err = m.Int64Counter("soulcast.synthesis.jobs",
		metric.WithDescription("Resolved synthesis jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("soulcast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("soulcast.active_turns",
		metric.WithDescription("Number of turns currently streaming."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("soulcast.http.request.duration",
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

// RecordTurn records a completed turn with its terminal status and duration.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.TurnDuration.Record(ctx, seconds)
}

// RecordSynthesisJob records a resolved synthesis job with its status, queue
// wait, and execution duration.
func (m *Metrics) RecordSynthesisJob(ctx context.Context, status string, waitSeconds, execSeconds float64) {
	m.SynthesisJobs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.GateWait.Record(ctx, waitSeconds)
	m.SynthesisDuration.Record(ctx, execSeconds)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
