package slimsearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// loggerFuncHandler adapts a LoggerFunc into a slog.Handler so that
// internal components logging through slog (the vacuum scheduler)
// reach the same sink as the engine's own warnings. Attributes are
// folded into the message as key=value pairs.
type loggerFuncHandler struct {
	fn    LoggerFunc
	attrs []slog.Attr
}

func (h *loggerFuncHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *loggerFuncHandler) Handle(_ context.Context, r slog.Record) error {
	parts := make([]string, 0, 4)
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})
	msg := r.Message
	if len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}
	h.fn(levelFor(r.Level), msg, "")
	return nil
}

func (h *loggerFuncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &loggerFuncHandler{fn: h.fn, attrs: merged}
}

func (h *loggerFuncHandler) WithGroup(string) slog.Handler { return h }

func levelFor(l slog.Level) LogLevel {
	switch {
	case l >= slog.LevelError:
		return LogError
	case l >= slog.LevelWarn:
		return LogWarn
	case l >= slog.LevelInfo:
		return LogInfo
	default:
		return LogDebug
	}
}
