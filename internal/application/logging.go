package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/logging"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrNoSessionToday):
		return "no_session_today"
	case errors.Is(err, ErrCourseNotFound), errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrProposalNotFound):
		return "not_found"
	case errors.Is(err, ErrLookupInProgress):
		return "lookup_in_progress"
	case errors.Is(err, identity.ErrLookupRejected):
		return "lookup_rejected"
	case errors.Is(err, identity.ErrServiceUnavailable), errors.Is(err, ErrLookupFailed):
		return "lookup_unavailable"
	case errors.Is(err, persistence.ErrCorruptState):
		return "corrupt_state"
	case errors.Is(err, ErrPersistenceUnavailable), errors.Is(err, persistence.ErrUnavailable):
		return "persistence_unavailable"
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate_event"
	case errors.Is(err, ErrMissingEventNumber):
		return "missing_event_number"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
