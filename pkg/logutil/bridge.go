package logutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-telemetry/opamp-go/client/types"
)

// opampLogger adapts slog to opamp-go. Its debug output is per message, so
// it is demoted to LevelTrace.
type opampLogger struct {
	l *slog.Logger
}

var _ types.Logger = opampLogger{}

func (o opampLogger) Debugf(ctx context.Context, format string, args ...any) {
	o.l.Log(ctx, LevelTrace, fmt.Sprintf(format, args...))
}

func (o opampLogger) Errorf(ctx context.Context, format string, args ...any) {
	o.l.ErrorContext(ctx, fmt.Sprintf(format, args...))
}

func NewOpAMPLogger(logger *slog.Logger) types.Logger {
	return opampLogger{l: OrDefault(logger).With("component", "opamp-go")}
}
