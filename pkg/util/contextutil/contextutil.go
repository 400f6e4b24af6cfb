package contextutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var ErrShutdown = errors.New("agent shutdown requested")

// SetupSignals returns a context cancelled with ErrShutdown as its cause once
// SIGTERM or SIGINT is received.
func SetupSignals(ctx context.Context) context.Context {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	ctxCa, ca := context.WithCancelCause(ctx)
	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			slog.With("signal", s.String()).Info("interrupt received")
			ca(fmt.Errorf("signal received : %w", ErrShutdown))
		case <-ctxCa.Done():
		}
	}()
	return ctxCa
}

// ShutdownReason renders the cancellation cause of ctx as the human readable
// reason reported to the control plane.
func ShutdownReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "process terminated"
}
