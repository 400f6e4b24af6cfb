package logutil

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	attrHealth = "health"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
)

const (
	colorRedIntense    = 9
	colorGreenIntense  = 10
	colorYellowIntense = 11
	colorBlueIntense   = 12
)

func WithHealth(logger *slog.Logger, status string) *slog.Logger {
	return logger.With(attrHealth, status)
}

// ParseLevel maps a level name onto a slog level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewHandler returns the colored handler used by the agent binary.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.LevelKey {
				level := attr.Value.Any().(slog.Level)
				switch {
				case level < LevelDebug:
					attr.Value = slog.StringValue("TRACE")
				}
			}

			if attr.Key == attrHealth {
				switch attr.Value.String() {
				case "Healthy":
					return tint.Attr(colorGreenIntense, attr)
				case "Starting":
					return tint.Attr(colorBlueIntense, attr)
				case "ProcessTerminated":
					return tint.Attr(colorYellowIntense, attr)
				default:
					return tint.Attr(colorRedIntense, attr)
				}
			}
			return attr
		},
	})
}

func init() {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, LevelTrace)))
}
