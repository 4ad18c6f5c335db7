// Package observe provides application-wide observability for Callsmith:
// OpenTelemetry metrics with a Prometheus exporter bridge and a tracer
// provider.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all Callsmith metrics.
const meterName = "github.com/callsmith-ai/callsmith"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks audio chunk transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ModelTurnDuration tracks one conversational model round trip.
	ModelTurnDuration metric.Float64Histogram

	// SummaryDuration tracks end-of-call summary generation latency.
	SummaryDuration metric.Float64Histogram

	// Utterances counts handled utterances. Use with attributes:
	//   attribute.String("terminal", "true"|"false")
	Utterances metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ExternalActions counts calendar and CRM invocations. Use with:
	//   attribute.String("action", "calendar"|"crm"), attribute.String("status", ...)
	ExternalActions metric.Int64Counter

	// EntityParseFailures counts unusable sentinel blocks.
	EntityParseFailures metric.Int64Counter

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// AudioBytes counts ingested audio payload bytes.
	AudioBytes metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// voice-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("callsmith.transcription.duration",
		metric.WithDescription("Latency of audio chunk transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelTurnDuration, err = m.Float64Histogram("callsmith.model_turn.duration",
		metric.WithDescription("Latency of one conversational model round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("callsmith.summary.duration",
		metric.WithDescription("Latency of end-of-call summary generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("callsmith.utterances",
		metric.WithDescription("Total handled utterances by terminality."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("callsmith.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ExternalActions, err = m.Int64Counter("callsmith.external_actions",
		metric.WithDescription("Total calendar and CRM invocations by action and status."),
	); err != nil {
		return nil, err
	}
	if met.EntityParseFailures, err = m.Int64Counter("callsmith.entity.parse_failures",
		metric.WithDescription("Total model replies whose entity block was unusable."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("callsmith.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("callsmith.audio.bytes",
		metric.WithDescription("Total ingested audio payload bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("callsmith.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which should not happen with the global provider.
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

// RecordUtterance increments the utterance counter.
func (m *Metrics) RecordUtterance(ctx context.Context, terminal bool) {
	val := "false"
	if terminal {
		val = "true"
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("terminal", val)))
}

// RecordProviderRequest increments the provider request counter with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordExternalAction increments the external action counter.
func (m *Metrics) RecordExternalAction(ctx context.Context, action, status string) {
	m.ExternalActions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}
