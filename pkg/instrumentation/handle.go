package instrumentation

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProviderHandle is a trace.TracerProvider whose referent can be
// replaced. Tracers obtained from the handle resolve the referent on every
// Start, so they follow later swaps.
type TracerProviderHandle struct {
	embedded.TracerProvider

	current atomic.Pointer[providerRef]
}

type providerRef struct {
	tp trace.TracerProvider
}

var _ trace.TracerProvider = (*TracerProviderHandle)(nil)

// NewTracerProviderHandle returns a handle pointing at tp, or at a noop
// provider when tp is nil.
func NewTracerProviderHandle(tp trace.TracerProvider) *TracerProviderHandle {
	h := &TracerProviderHandle{}
	h.Set(tp)
	return h
}

func (h *TracerProviderHandle) Set(tp trace.TracerProvider) {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	h.current.Store(&providerRef{tp: tp})
}

func (h *TracerProviderHandle) Current() trace.TracerProvider {
	return h.current.Load().tp
}

func (h *TracerProviderHandle) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &handleTracer{handle: h, name: name, opts: opts}
}

type handleTracer struct {
	embedded.Tracer

	handle *TracerProviderHandle
	name   string
	opts   []trace.TracerOption
}

func (t *handleTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.handle.Current().Tracer(t.name, t.opts...).Start(ctx, spanName, opts...)
}
