// Package instrumentation owns the instrumentation libraries of the agent and
// switches their span emission as remote configuration changes.
//
// Every library receives its own TracerProviderHandle at construction. A new
// configuration never recreates handles; it only replaces what they point at.
package instrumentation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/otelfleet/otelagent/pkg/logutil"
	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnknownLibrary = errors.New("unknown instrumentation library")

// Library is one instrumented integration.
type Library interface {
	ID() string
	Version() string
	Handle() *TracerProviderHandle
	// SetHeaderKeys selects the request headers recorded on spans.
	SetHeaderKeys(keys []string)
}

type serverMiddleware interface {
	Middleware(operation string) func(http.Handler) http.Handler
}

type clientTransport interface {
	Transport(base http.RoundTripper) http.RoundTripper
}

// Factory builds a library bound to handle. Libraries that carry context
// across process boundaries inject and extract it with propagator.
type Factory func(handle *TracerProviderHandle, hooks *Hooks, propagator propagation.TextMapPropagator) (Library, error)

type factoryEntry struct {
	id  string
	new Factory
}

// factories is the static table of known libraries.
var factories = []factoryEntry{
	{id: LibraryHTTPServer, new: newHTTPServerLibrary},
	{id: LibraryHTTPClient, new: newHTTPClientLibrary},
}

// KnownLibraries lists the ids of every library the agent can load.
func KnownLibraries() []string {
	return lo.Map(factories, func(f factoryEntry, _ int) string { return f.id })
}

type Option func(*options)

type options struct {
	restrict   bool
	enabled    []string
	extra      []factoryEntry
	propagator propagation.TextMapPropagator
}

// DefaultPropagator is W3C trace context plus W3C baggage.
func DefaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// WithPropagator replaces DefaultPropagator for every library.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// WithLibraries restricts loading to ids. Unknown ids are skipped with a
// warning.
func WithLibraries(ids ...string) Option {
	return func(o *options) {
		o.restrict = true
		o.enabled = ids
	}
}

// WithFactory adds a library to the table.
func WithFactory(id string, f Factory) Option {
	return func(o *options) {
		o.extra = append(o.extra, factoryEntry{id: id, new: f})
	}
}

type Registry struct {
	logger     *slog.Logger
	global     *TracerProviderHandle
	propagator propagation.TextMapPropagator

	mu    sync.RWMutex
	order []string
	libs  map[string]Library
	hooks map[string]*Hooks
}

// NewRegistry loads libraries from the static table. A failing factory is
// logged and skipped.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	logger = logutil.OrDefault(logger)
	o := &options{propagator: DefaultPropagator()}
	for _, opt := range opts {
		opt(o)
	}
	table := append(append([]factoryEntry{}, factories...), o.extra...)
	byID := lo.SliceToMap(table, func(f factoryEntry) (string, factoryEntry) { return f.id, f })

	ids := lo.Map(table, func(f factoryEntry, _ int) string { return f.id })
	if o.restrict {
		ids = o.enabled
	}

	r := &Registry{
		logger:     logger,
		global:     NewTracerProviderHandle(nil),
		propagator: o.propagator,
		libs:   map[string]Library{},
		hooks:  map[string]*Hooks{},
	}
	for _, id := range lo.Uniq(ids) {
		entry, ok := byID[id]
		if !ok {
			logger.With("library", id).Warn("unknown instrumentation library, skipping")
			continue
		}
		hooks := &Hooks{}
		lib, err := entry.new(NewTracerProviderHandle(nil), hooks, r.propagator)
		if err != nil {
			logger.With("library", id, "err", err).Warn("failed to load instrumentation library, skipping")
			continue
		}
		r.order = append(r.order, id)
		r.libs[id] = lib
		r.hooks[id] = hooks
	}
	return r
}

// TracerProvider is the process wide provider. It is suitable for
// otel.SetTracerProvider and never changes identity.
func (r *Registry) TracerProvider() *TracerProviderHandle {
	return r.global
}

// Propagator is the text map propagator shared by the loaded libraries.
func (r *Registry) Propagator() propagation.TextMapPropagator {
	return r.propagator
}

// Apply points the global handle at tp when traces are enabled and at a noop
// provider otherwise. Each library gets tp only when traces are enabled and
// its override, if any, allows it.
func (r *Registry) Apply(cfg *remoteconfig.RemoteConfig, tp trace.TracerProvider) {
	if cfg.TracesEnabled() {
		r.global.Set(tp)
	} else {
		r.global.Set(nil)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	headers := cfg.HeaderKeys()
	for _, id := range r.order {
		lib := r.libs[id]
		enabled := cfg.LibraryTracesEnabled(id)
		if enabled {
			lib.Handle().Set(tp)
		} else {
			lib.Handle().Set(nil)
		}
		lib.SetHeaderKeys(headers)
		r.logger.With("library", id, "traces", enabled).Debug("applied instrumentation config")
	}
}

// Library returns the loaded library with id.
func (r *Registry) Library(id string) (Library, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lib, ok := r.libs[id]
	return lib, ok
}

// Libraries lists loaded library ids in load order.
func (r *Registry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RegisterSpanEmittingHook attaches hook to the library with libraryID.
func (r *Registry) RegisterSpanEmittingHook(libraryID string, hook HookSpec) error {
	if hook.OnStart == nil {
		return fmt.Errorf("hook %q has no OnStart", hook.Name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	hooks, ok := r.hooks[libraryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLibrary, libraryID)
	}
	hooks.add(hook)
	r.logger.With("library", libraryID, "hook", hook.Name).Debug("registered span hook")
	return nil
}

// PackageStatuses is the package inventory reported at handshake, library id
// to version.
func (r *Registry) PackageStatuses() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapValues(r.libs, func(lib Library, _ string) string { return lib.Version() })
}

// HTTPMiddleware instruments server handlers. Handlers pass through untouched
// when the net/http library is not loaded.
func (r *Registry) HTTPMiddleware(operation string) func(http.Handler) http.Handler {
	lib, _ := r.Library(LibraryHTTPServer)
	mw, ok := lib.(serverMiddleware)
	if !ok {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.Middleware(operation)
}

// HTTPTransport instruments outgoing requests made through base.
func (r *Registry) HTTPTransport(base http.RoundTripper) http.RoundTripper {
	lib, _ := r.Library(LibraryHTTPClient)
	tr, ok := lib.(clientTransport)
	if !ok {
		if base == nil {
			return http.DefaultTransport
		}
		return base
	}
	return tr.Transport(base)
}
