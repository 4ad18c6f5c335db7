package observe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the process-wide tracer for call server spans. Spans are
// no-ops until InitProvider has installed a tracer provider.
func Tracer() trace.Tracer {
	return otel.Tracer(meterName)
}
