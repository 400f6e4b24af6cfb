package opamp

import (
	"sync"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
)

type HealthStatus string

const (
	HealthStarting                  HealthStatus = "Starting"
	HealthHealthy                   HealthStatus = "Healthy"
	HealthUnsupportedRuntimeVersion HealthStatus = "UnsupportedRuntimeVersion"
	HealthProcessTerminated         HealthStatus = "ProcessTerminated"
)

type HealthInfo struct {
	Status       HealthStatus
	ErrorMessage string
}

// HealthReporter holds the last reported health of the agent.
type HealthReporter struct {
	mu         sync.Mutex
	now        func() time.Time
	current    HealthInfo
	startTime  time.Time
	statusTime time.Time
}

func NewHealthReporter(now func() time.Time) *HealthReporter {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &HealthReporter{
		now:        now,
		current:    HealthInfo{Status: HealthStarting},
		startTime:  start,
		statusTime: start,
	}
}

// Set records info and reports whether it differs from the previous value.
func (h *HealthReporter) Set(info HealthInfo) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == info {
		return false
	}
	h.current = info
	h.statusTime = h.now()
	return true
}

func (h *HealthReporter) Current() HealthInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// ComponentHealth renders the current health in its wire form.
func (h *HealthReporter) ComponentHealth() *protobufs.ComponentHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &protobufs.ComponentHealth{
		Healthy:            h.current.Status == HealthHealthy,
		Status:             string(h.current.Status),
		LastError:          h.current.ErrorMessage,
		StartTimeUnixNano:  uint64(h.startTime.UnixNano()),
		StatusTimeUnixNano: uint64(h.statusTime.UnixNano()),
	}
}
