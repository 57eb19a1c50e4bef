// Package sysapi is the boundary to the native process and handle APIs.
//
// The rest of the module talks to the operating system only through the
// System interface, which keeps the scanning and unlocking logic testable
// with fakes on any platform. The Windows implementation lives in
// sys_windows.go; other platforms get a stub that reports ErrUnsupported.
package sysapi

import (
	"errors"
	"fmt"
)

// Handle is a handle value valid in the calling process.
type Handle uintptr

// RemoteHandle is a handle value that belongs to another process's handle
// table. It is meaningless in the calling process and is only ever passed
// back to the system together with a handle to its owner.
type RemoteHandle struct {
	PID   uint32
	Value uintptr
}

// String formats the handle value the way it is shown in log lines.
func (r RemoteHandle) String() string {
	return fmt.Sprintf("0x%X", r.Value)
}

// System abstracts the native calls used to scan processes and revoke
// handles. Query methods follow the size negotiation contract of
// ntbuf.QueryFunc.
type System interface {
	// QueryProcessList fills buf with the system process information list.
	QueryProcessList(buf []byte) (uint32, error)

	// OpenProcess opens pid with full access.
	OpenProcess(pid uint32) (Handle, error)

	// QueryHandleSnapshot fills buf with the handle table of process.
	QueryHandleSnapshot(process Handle, buf []byte) (uint32, error)

	// DuplicateHandle copies value from process's handle table into the
	// calling process with the same access. With closeSource the entry is
	// removed from process's table in the same call.
	DuplicateHandle(process Handle, value uintptr, closeSource bool) (Handle, error)

	// QueryObjectName fills buf with the object name information of h.
	QueryObjectName(h Handle, buf []byte) (uint32, error)

	// QueryObjectType fills buf with the object type information of h.
	QueryObjectType(h Handle, buf []byte) (uint32, error)

	// TerminateProcess forcibly ends process.
	TerminateProcess(process Handle, exitCode uint32) error

	// CloseHandle releases h.
	CloseHandle(h Handle) error
}

var (
	// ErrUnsupported is returned by the stub System on non-Windows platforms.
	ErrUnsupported = errors.New("not supported on this platform")

	// ErrProcessUnavailable is returned when a process cannot be opened,
	// usually because it has exited.
	ErrProcessUnavailable = errors.New("process unavailable")
)

// CallError records which native operation failed and for which process.
type CallError struct {
	Op  string
	PID uint32
	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.PID != 0 {
		return fmt.Sprintf("%s (pid %d): %v", e.Op, e.PID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}
