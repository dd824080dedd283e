package persistence

import "errors"

var (
	// ErrUnavailable is returned when the backing store cannot be read or written.
	ErrUnavailable = errors.New("persistence: store unavailable")
	// ErrCorruptState is returned when the stored document cannot be decoded.
	ErrCorruptState = errors.New("persistence: stored state is corrupt")
)
