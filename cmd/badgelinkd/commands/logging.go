package commands

import (
	"context"
	"log/slog"

	log "github.com/sirupsen/logrus"
)

// logrusHandler adapts the core packages' log/slog.Logger usage onto the
// process-wide logrus logger, so every component's structured records
// end up going through the same sink and formatter as the CLI's own
// logging.
type logrusHandler struct {
	logger *log.Logger
	attrs  []slog.Attr
}

func newSlogBridge(logger *log.Logger) *slog.Logger {
	return slog.New(&logrusHandler{logger: logger})
}

func (h *logrusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.IsLevelEnabled(slogToLogrusLevel(level))
}

func (h *logrusHandler) Handle(_ context.Context, r slog.Record) error {
	fields := log.Fields{}
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	entry := h.logger.WithFields(fields)
	switch {
	case r.Level >= slog.LevelError:
		entry.Error(r.Message)
	case r.Level >= slog.LevelWarn:
		entry.Warn(r.Message)
	case r.Level >= slog.LevelInfo:
		entry.Info(r.Message)
	default:
		entry.Debug(r.Message)
	}
	return nil
}

func (h *logrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &logrusHandler{logger: h.logger, attrs: make([]slog.Attr, 0, len(h.attrs)+len(attrs))}
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *logrusHandler) WithGroup(name string) slog.Handler {
	return h
}

func slogToLogrusLevel(level slog.Level) log.Level {
	switch {
	case level >= slog.LevelError:
		return log.ErrorLevel
	case level >= slog.LevelWarn:
		return log.WarnLevel
	case level >= slog.LevelInfo:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
