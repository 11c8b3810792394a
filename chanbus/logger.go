package chanbus

import "log/slog"

// Logger is the pluggable logging contract of the bus. *slog.Logger satisfies
// it directly; internal/logging adapts zerolog.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

func discardLogger() Logger {
	return slog.New(slog.DiscardHandler)
}
