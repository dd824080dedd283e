package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/roster"
)

var (
	// ErrUnauthorized is returned when the caller lacks operator credentials.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrCourseNotFound is returned for unknown course ids.
	ErrCourseNotFound = errors.New("application: course not found")
	// ErrParticipantNotFound is returned for unknown participant ids.
	ErrParticipantNotFound = errors.New("application: participant not found")
	// ErrInvalidIdentity is returned when a CUIL does not normalize to 11 digits.
	ErrInvalidIdentity = errors.New("application: invalid identity number")
	// ErrNoSessionToday is returned when the date is not a session of the course.
	ErrNoSessionToday = errors.New("application: no session on this date")
	// ErrLookupFailed wraps identity.ErrServiceUnavailable or identity.ErrLookupRejected.
	ErrLookupFailed = errors.New("application: identity lookup failed")
	// ErrLookupInProgress is returned while a lookup for the same course and CUIL runs.
	ErrLookupInProgress = errors.New("application: identity lookup already in progress")
	// ErrProposalNotFound is returned for unknown or expired proposals.
	ErrProposalNotFound = errors.New("application: proposal not found or expired")
	// ErrPersistenceUnavailable is returned when the shared store cannot be written.
	ErrPersistenceUnavailable = errors.New("application: persistence unavailable")
	// ErrDuplicateEvent is returned when importing an event number that already exists.
	ErrDuplicateEvent = errors.New("application: event number already exists")

	// ErrCorruptState is returned when the stored snapshot cannot be decoded.
	ErrCorruptState = persistence.ErrCorruptState
	// ErrMissingEventNumber is returned when an import sheet has no event number.
	ErrMissingEventNumber = roster.ErrMissingEventNumber
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
