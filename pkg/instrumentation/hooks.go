package instrumentation

import (
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// HookSpec describes a callback run when a library starts a span, letting
// callers enrich or react to spans without patching the library.
type HookSpec struct {
	Name string
	// OnStart runs with the span the library just started and the request it
	// covers.
	OnStart func(span trace.Span, r *http.Request)
}

// Hooks holds the hooks registered for one library.
type Hooks struct {
	mu    sync.RWMutex
	hooks []HookSpec
}

func (h *Hooks) add(spec HookSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, spec)
}

// Run invokes every hook in registration order.
func (h *Hooks) Run(span trace.Span, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.hooks {
		hook.OnStart(span, r)
	}
}
