package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/otelfleet/otelagent/pkg/remoteconfig"
)

// ConfigRecorder is a remote config callback that records every config it
// receives.
type ConfigRecorder struct {
	mu sync.Mutex

	// History stores every config delivered, in order.
	History []*remoteconfig.RemoteConfig

	// FailNext causes the next call to return FailError.
	FailNext  bool
	FailError error

	// PanicNext causes the next call to panic.
	PanicNext bool
}

func NewConfigRecorder() *ConfigRecorder {
	return &ConfigRecorder{
		FailError: errors.New("mock callback failure"),
	}
}

// OnRemoteConfig has the signature of the client callback.
func (r *ConfigRecorder) OnRemoteConfig(_ context.Context, cfg *remoteconfig.RemoteConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.History = append(r.History, cfg)
	if r.PanicNext {
		r.PanicNext = false
		panic("mock callback panic")
	}
	if r.FailNext {
		r.FailNext = false
		return r.FailError
	}
	return nil
}

func (r *ConfigRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.History)
}

// Last returns the most recent config, or nil.
func (r *ConfigRecorder) Last() *remoteconfig.RemoteConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.History) == 0 {
		return nil
	}
	return r.History[len(r.History)-1]
}

func (r *ConfigRecorder) SetFailNext(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailNext = fail
}

func (r *ConfigRecorder) SetPanicNext(p bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PanicNext = p
}
