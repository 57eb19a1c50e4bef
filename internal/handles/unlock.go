package handles

import (
	"fmt"
	"log/slog"

	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// UnlockResult describes a lock handle that was removed from a target.
type UnlockResult struct {
	Handle     sysapi.RemoteHandle
	ObjectName string
	// CloseErr is set when the local copy could not be released. The
	// remote handle is gone regardless.
	CloseErr error
}

// Message formats the user-facing log line for r.
func (r *UnlockResult) Message(target string) string {
	return fmt.Sprintf("Closed %s for %s (PID: %d)", r.Handle, target, r.Handle.PID)
}

// Unlocker removes a handle from another process's handle table.
type Unlocker struct {
	sys    sysapi.System
	logger *slog.Logger
}

// NewUnlocker creates an Unlocker. A nil logger means slog.Default().
func NewUnlocker(sys sysapi.System, logger *slog.Logger) *Unlocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Unlocker{sys: sys, logger: logger}
}

// Unlock duplicates remote out of process with close-source, then releases
// the local copy.
//
// If the duplication fails, removed is false, the error wraps
// ErrUnlockFailed and the target is untouched. If only the final close
// fails, removed is still true and the close error is returned alongside
// it; the remote handle is not retried.
func (u *Unlocker) Unlock(process *sysapi.OwnedHandle, remote sysapi.RemoteHandle) (removed bool, err error) {
	local, err := sysapi.Duplicate(u.sys, process, remote, true)
	if err != nil {
		return false, fmt.Errorf("%w: %s in pid %d: %w", ErrUnlockFailed, remote, remote.PID, err)
	}
	if err := local.Close(); err != nil {
		u.logger.Warn("lock handle removed but local copy not released",
			"pid", remote.PID, "handle", remote.String(), "error", err)
		return true, fmt.Errorf("release local copy of %s: %w", remote, err)
	}
	return true, nil
}
