package sysapi

import "fmt"

// OwnedHandle is a local handle with exactly one owner. Close releases the
// handle once; later calls are no-ops and Raw returns 0 afterwards, so a
// released handle value can never reach the system again through it.
//
// An OwnedHandle is not safe for concurrent use.
type OwnedHandle struct {
	sys    System
	h      Handle
	closed bool
}

// Own takes ownership of h.
func Own(sys System, h Handle) *OwnedHandle {
	return &OwnedHandle{sys: sys, h: h}
}

// Raw returns the handle value, or 0 once the handle has been closed.
func (o *OwnedHandle) Raw() Handle {
	if o == nil || o.closed {
		return 0
	}
	return o.h
}

// Closed reports whether Close has been called.
func (o *OwnedHandle) Closed() bool {
	return o == nil || o.closed
}

// Close releases the handle. Only the first call reaches the system.
func (o *OwnedHandle) Close() error {
	if o == nil || o.closed {
		return nil
	}
	o.closed = true
	if err := o.sys.CloseHandle(o.h); err != nil {
		return &CallError{Op: "CloseHandle", Err: err}
	}
	return nil
}

// OpenProcess opens pid with full access and returns an owned handle.
// Any failure is reported as ErrProcessUnavailable.
func OpenProcess(sys System, pid uint32) (*OwnedHandle, error) {
	h, err := sys.OpenProcess(pid)
	if err != nil {
		return nil, &CallError{Op: "OpenProcess", PID: pid, Err: fmt.Errorf("%w: %w", ErrProcessUnavailable, err)}
	}
	return Own(sys, h), nil
}

// Duplicate copies remote into the calling process. The result is a new,
// independently owned handle; process keeps its own ownership.
func Duplicate(sys System, process *OwnedHandle, remote RemoteHandle, closeSource bool) (*OwnedHandle, error) {
	if process.Closed() {
		return nil, &CallError{Op: "DuplicateHandle", PID: remote.PID, Err: ErrProcessUnavailable}
	}
	h, err := sys.DuplicateHandle(process.Raw(), remote.Value, closeSource)
	if err != nil {
		return nil, &CallError{Op: "DuplicateHandle", PID: remote.PID, Err: err}
	}
	return Own(sys, h), nil
}
