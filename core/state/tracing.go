package state

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans, the way otel.Tracer is
// conventionally looked up by its owning package path.
const tracerName = "github.com/nhbchain/boxchain/core/state"

// defaultTracer resolves to a no-op tracer unless the process has configured
// a global TracerProvider — this module wires the otel API surface but never
// an SDK or exporter (spec §1 non-goals; SPEC_FULL.md domain stack).
func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startApplyBlockSpan opens the span around one ApplyBlock call.
func startApplyBlockSpan(ctx context.Context, tracer trace.Tracer, blockID [32]byte) (context.Context, trace.Span) {
	return tracer.Start(ctx, "boxchain.state.apply_block", trace.WithAttributes())
}
