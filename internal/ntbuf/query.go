// Package ntbuf implements the size negotiation protocol shared by the
// native information queries (process list, handle snapshot, object name)
// and a bounds-checked reader for the variable-length records they return.
package ntbuf

import (
	"errors"
	"fmt"
)

const (
	// DefaultInitialSize is the first buffer size tried when no hint is given.
	DefaultInitialSize = 4 * 1024

	// DefaultMaxAttempts bounds the number of calls made by Query.
	DefaultMaxAttempts = 8

	// DefaultMaxSize is the largest buffer Query will allocate.
	DefaultMaxSize = 256 * 1024 * 1024
)

var (
	// ErrBufferTooSmall is returned by a QueryFunc when the buffer cannot hold
	// the result. The accompanying size is the number of bytes required.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNoConvergence is returned when the required size never settles
	// within the attempt or size bounds.
	ErrNoConvergence = errors.New("buffer size did not converge")
)

// QueryFunc fills buf and reports the number of bytes written on success or
// the number of bytes required together with ErrBufferTooSmall.
type QueryFunc func(buf []byte) (needed uint32, err error)

type options struct {
	initialSize int
	maxAttempts int
	maxSize     int
	slack       int
}

// Option configures Query.
type Option func(*options)

// WithInitialSize sets the size of the first buffer.
func WithInitialSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.initialSize = n
		}
	}
}

// WithMaxAttempts sets the maximum number of calls to the query function.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithMaxSize caps the buffer size.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithSlack adds n extra bytes on every growth step. Useful for results that
// grow between calls, such as the system process list.
func WithSlack(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.slack = n
		}
	}
}

// Query calls fn with a growing buffer until it succeeds.
//
// On ErrBufferTooSmall the buffer is grown to the reported size (doubled
// when the report is not larger than the current buffer) and the call is
// retried. Any other error is returned as is. The returned slice is trimmed
// to the reported length when that length fits the buffer.
func Query(fn QueryFunc, opts ...Option) ([]byte, error) {
	o := options{
		initialSize: DefaultInitialSize,
		maxAttempts: DefaultMaxAttempts,
		maxSize:     DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	buf := make([]byte, min(o.initialSize, o.maxSize))
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		needed, err := fn(buf)
		if err == nil {
			if needed > 0 && int(needed) <= len(buf) {
				return buf[:needed], nil
			}
			return buf, nil
		}
		if !errors.Is(err, ErrBufferTooSmall) {
			return nil, err
		}

		next := int(needed)
		if next <= len(buf) {
			next = max(len(buf)*2, 64)
		}
		next += o.slack
		if next > o.maxSize {
			return nil, fmt.Errorf("%w: %d bytes requested, limit %d", ErrNoConvergence, next, o.maxSize)
		}
		buf = make([]byte, next)
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrNoConvergence, o.maxAttempts)
}
