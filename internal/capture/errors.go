package capture

import (
	"errors"
	"fmt"
)

// Capture errors.
var (
	// ErrFetchExhausted indicates the manifest fetch budget for one pass was
	// used up on transient failures. Fatal for the session.
	ErrFetchExhausted = errors.New("manifest fetch attempts exhausted")

	// ErrUnsupportedPartDuration indicates more than one part in a single
	// pass deviated from the nominal part duration while segment alignment
	// was active. The id arithmetic assumes near-uniform parts, so continuing
	// would silently corrupt the numbering. One deviating part is tolerated
	// because the closing part of a broadcast is usually short.
	ErrUnsupportedPartDuration = errors.New("multiple parts with unsupported duration")

	// ErrSegmentNotFound indicates a segment id was requested that is not in
	// the queue. Popping an absent id is a programming error, not a
	// recoverable condition.
	ErrSegmentNotFound = errors.New("segment not found")
)

// SessionError wraps a fatal error with the channel it belongs to, so one
// failing capture can be logged and restarted without affecting others.
type SessionError struct {
	Channel string
	Err     error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("capture session for %s: %v", e.Channel, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}
