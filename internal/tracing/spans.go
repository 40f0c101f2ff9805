package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrSnapshotID     = "registry.snapshot_id"
	AttrSourceCount    = "scan.sources"
	AttrManifestCount  = "scan.manifests"
	AttrScanErrors     = "scan.errors"
	AttrContractCount  = "registry.contracts"
	AttrBindingCount   = "registry.bindings"
	AttrConflictCount  = "resolve.conflicts"
	AttrContract       = "binding.contract"
	AttrImplementation = "binding.implementation"
	AttrOrigin         = "binding.origin"
	AttrActivationMode = "activation.mode"
)

// Span names.
const (
	SpanBuild    = "registry.build"
	SpanScan     = "registry.scan"
	SpanResolve  = "registry.resolve"
	SpanReload   = "registry.reload"
	SpanActivate = "binding.activate"
)

// Event names.
const (
	EventSnapshotSwapped = "snapshot.swapped"
	EventFallback        = "activation.fallback"
)

// Start begins an internal span. A nil tracer yields a non-recording span so
// callers never need a nil check.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Finish records err (if any) as the span status and ends the span.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
