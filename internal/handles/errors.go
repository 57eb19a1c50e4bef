package handles

import "errors"

var (
	// ErrUnlockFailed is returned when the lock handle could not be removed
	// from the target process. The target's handle table is unchanged.
	ErrUnlockFailed = errors.New("unlock failed")

	// ErrMalformedSnapshot is returned when a handle snapshot header does
	// not agree with the buffer it came in.
	ErrMalformedSnapshot = errors.New("malformed handle snapshot")
)
