package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"room": "invalid", "cuil": "bad"}}
	if got := withFields.Error(); got != "validation failed: cuil, room" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	v := &ValidationError{}
	v.add("field", "bad")
	if !v.HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidIdentity, "invalid_identity"},
		{fmt.Errorf("wrap: %w", ErrNoSessionToday), "no_session_today"},
		{ErrCourseNotFound, "not_found"},
		{ErrParticipantNotFound, "not_found"},
		{ErrProposalNotFound, "not_found"},
		{ErrLookupInProgress, "lookup_in_progress"},
		{fmt.Errorf("%w: %w", ErrLookupFailed, identity.ErrServiceUnavailable), "lookup_unavailable"},
		{fmt.Errorf("%w: %w", ErrLookupFailed, &identity.RejectedError{Code: "1"}), "lookup_rejected"},
		{fmt.Errorf("%w: %w", ErrPersistenceUnavailable, persistence.ErrUnavailable), "persistence_unavailable"},
		{persistence.ErrCorruptState, "corrupt_state"},
		{ErrDuplicateEvent, "duplicate_event"},
		{ErrMissingEventNumber, "missing_event_number"},
		{ErrUnauthorized, "unauthorized"},
		{&ValidationError{FieldErrors: map[string]string{"a": "b"}}, "validation"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
