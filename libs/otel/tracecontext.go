package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is a span's W3C trace context flattened into two columns, so a row
// written inside a transaction can be published later under the same trace.
type StoredTrace struct {
	Parent string // traceparent
	State  string // tracestate
}

// CaptureTrace snapshots the trace context carried by ctx. It is empty when ctx has
// no recording or remote span.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

func (s StoredTrace) IsZero() bool {
	return s.Parent == "" && s.State == ""
}

// Resume returns ctx with s installed as the remote parent span.
func (s StoredTrace) Resume(ctx context.Context) context.Context {
	if s.IsZero() {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	carrier.Set("traceparent", s.Parent)
	if s.State != "" {
		carrier.Set("tracestate", s.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
