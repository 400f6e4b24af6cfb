package instrumentation

import (
	"net/http"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	LibraryHTTPServer = "net/http"
	LibraryHTTPClient = "net/http/client"
)

const headerAttributePrefix = "http.request.header."

// headerCapture records configured request headers on the active span.
type headerCapture struct {
	keys atomic.Pointer[[]string]
}

func (c *headerCapture) set(keys []string) {
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		normalized = append(normalized, http.CanonicalHeaderKey(k))
	}
	c.keys.Store(&normalized)
}

func (c *headerCapture) record(span trace.Span, r *http.Request) {
	keys := c.keys.Load()
	if keys == nil || !span.IsRecording() {
		return
	}
	for _, k := range *keys {
		values := r.Header.Values(k)
		if len(values) == 0 {
			continue
		}
		span.SetAttributes(attribute.StringSlice(headerAttributePrefix+strings.ToLower(k), values))
	}
}

type httpLibrary struct {
	id         string
	handle     *TracerProviderHandle
	hooks      *Hooks
	headers    *headerCapture
	propagator propagation.TextMapPropagator
}

func (l *httpLibrary) ID() string {
	return l.id
}

func (l *httpLibrary) Version() string {
	return otelhttp.Version()
}

func (l *httpLibrary) Handle() *TracerProviderHandle {
	return l.handle
}

func (l *httpLibrary) SetHeaderKeys(keys []string) {
	l.headers.set(keys)
}

// onStart runs inside the span started by otelhttp.
func (l *httpLibrary) onStart(r *http.Request) {
	span := trace.SpanFromContext(r.Context())
	l.headers.record(span, r)
	l.hooks.Run(span, r)
}

func newHTTPServerLibrary(handle *TracerProviderHandle, hooks *Hooks, propagator propagation.TextMapPropagator) (Library, error) {
	return &httpServerLibrary{httpLibrary{
		id:         LibraryHTTPServer,
		handle:     handle,
		hooks:      hooks,
		headers:    &headerCapture{},
		propagator: propagator,
	}}, nil
}

type httpServerLibrary struct {
	httpLibrary
}

// Middleware wraps next in a server span named after operation.
func (l *httpServerLibrary) Middleware(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.onStart(r)
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(inner, operation,
			otelhttp.WithTracerProvider(l.handle),
			otelhttp.WithPropagators(l.propagator),
		)
	}
}

func newHTTPClientLibrary(handle *TracerProviderHandle, hooks *Hooks, propagator propagation.TextMapPropagator) (Library, error) {
	return &httpClientLibrary{httpLibrary{
		id:         LibraryHTTPClient,
		handle:     handle,
		hooks:      hooks,
		headers:    &headerCapture{},
		propagator: propagator,
	}}, nil
}

type httpClientLibrary struct {
	httpLibrary
}

// Transport wraps base, defaulting to http.DefaultTransport, in client spans.
func (l *httpClientLibrary) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	inner := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		l.onStart(r)
		return base.RoundTrip(r)
	})
	return otelhttp.NewTransport(inner,
		otelhttp.WithTracerProvider(l.handle),
		otelhttp.WithPropagators(l.propagator),
	)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
