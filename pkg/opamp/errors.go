package opamp

import (
	"errors"
	"fmt"
)

// ErrNoRemoteConfig is returned when a handshake response carries no
// remote_config section.
var ErrNoRemoteConfig = errors.New("control plane response has no remote config")

// ErrClosed is returned by Start once the client has been shut down.
var ErrClosed = errors.New("opamp client is shut down")

// TransportError covers network failures, timeouts, non-2xx responses and
// undecodable bodies.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("opamp transport: status %d: %s", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("opamp transport: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
