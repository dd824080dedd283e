package http

import (
	"context"
	"log/slog"
)

// loggerOr returns logger, or the process default when it is nil.
func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// scopedLogger tags the request logger, or fallback outside a request, with
// the handler and the operation it is serving.
func scopedLogger(ctx context.Context, fallback *slog.Logger, handler, operation string, attrs ...any) *slog.Logger {
	base := LoggerFromContext(ctx)
	if base == nil {
		base = loggerOr(fallback)
	}
	base = base.With("handler", handler)
	if operation != "" {
		base = base.With("operation", operation)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
