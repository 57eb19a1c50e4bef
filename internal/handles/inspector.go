// Package handles finds the single-instance lock object in a target
// process's handle table and removes it.
package handles

import (
	"context"
	"log/slog"
	"strings"

	"github.com/graaaaa/scr-multilauncher/internal/ntbuf"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// DefaultSignature is the name fragment of the lock object.
const DefaultSignature = "Starcraft Check For Other Instances"

// DefaultSkipTypes are object types whose names are never queried. Name
// queries on synchronous pipe handles can block indefinitely.
var DefaultSkipTypes = []string{"File"}

// Inspector searches one process at a time for the lock handle.
type Inspector struct {
	sys       sysapi.System
	signature string
	skipTypes map[string]bool
	unlocker  *Unlocker
	logger    *slog.Logger

	snapshotOpts []ntbuf.Option
	objectOpts   []ntbuf.Option
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithSignature sets the object name fragment that identifies the lock.
func WithSignature(sig string) Option {
	return func(i *Inspector) {
		if sig != "" {
			i.signature = sig
		}
	}
}

// WithSkipTypes replaces the list of object types that are never named.
// An empty list disables type filtering.
func WithSkipTypes(types ...string) Option {
	return func(i *Inspector) {
		i.skipTypes = make(map[string]bool, len(types))
		for _, t := range types {
			i.skipTypes[t] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Inspector) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInspector creates an Inspector.
func NewInspector(sys sysapi.System, opts ...Option) *Inspector {
	i := &Inspector{
		sys:          sys,
		signature:    DefaultSignature,
		logger:       slog.Default(),
		snapshotOpts: []ntbuf.Option{ntbuf.WithInitialSize(16 * 1024), ntbuf.WithSlack(4096)},
		objectOpts:   []ntbuf.Option{ntbuf.WithInitialSize(512)},
	}
	WithSkipTypes(DefaultSkipTypes...)(i)
	for _, opt := range opts {
		opt(i)
	}
	i.unlocker = NewUnlocker(sys, i.logger)
	return i
}

// Signature returns the lock object name fragment.
func (i *Inspector) Signature() string {
	return i.signature
}

// Inspect looks for the lock handle in pid and removes it.
//
// It returns nil, nil when no handle matches. Failing to open the process
// returns an error wrapping sysapi.ErrProcessUnavailable. Every handle
// opened along the way is released before Inspect returns.
func (i *Inspector) Inspect(ctx context.Context, pid uint32) (*UnlockResult, error) {
	process, err := sysapi.OpenProcess(i.sys, pid)
	if err != nil {
		return nil, err
	}
	defer i.release(process, pid)

	buf, err := ntbuf.Query(func(b []byte) (uint32, error) {
		return i.sys.QueryHandleSnapshot(process.Raw(), b)
	}, i.snapshotOpts...)
	if err != nil {
		return nil, &sysapi.CallError{Op: "QueryHandleSnapshot", PID: pid, Err: err}
	}
	records, err := ParseHandleSnapshot(ntbuf.NewReader(buf))
	if err != nil {
		return nil, err
	}

	types := make(map[uint32]string)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remote := sysapi.RemoteHandle{PID: pid, Value: rec.Value}
		name, ok := i.objectName(process, remote, rec.ObjectTypeIndex, types)
		if !ok || !strings.Contains(name, i.signature) {
			continue
		}

		removed, err := i.unlocker.Unlock(process, remote)
		if !removed {
			return nil, err
		}
		return &UnlockResult{Handle: remote, ObjectName: name, CloseErr: err}, nil
	}
	return nil, nil
}

// objectName duplicates remote, reads its object name and releases the
// duplicate. ok is false when the record has to be skipped.
func (i *Inspector) objectName(process *sysapi.OwnedHandle, remote sysapi.RemoteHandle, typeIndex uint32, types map[uint32]string) (name string, ok bool) {
	dup, err := sysapi.Duplicate(i.sys, process, remote, false)
	if err != nil {
		return "", false
	}
	defer i.release(dup, remote.PID)

	if len(i.skipTypes) > 0 {
		typeName, cached := types[typeIndex]
		if !cached {
			typeName, err = i.queryString(i.sys.QueryObjectType, dup)
			if err != nil {
				return "", false
			}
			types[typeIndex] = typeName
		}
		if i.skipTypes[typeName] {
			return "", false
		}
	}

	name, err = i.queryString(i.sys.QueryObjectName, dup)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

func (i *Inspector) queryString(query func(sysapi.Handle, []byte) (uint32, error), h *sysapi.OwnedHandle) (string, error) {
	buf, err := ntbuf.Query(func(b []byte) (uint32, error) {
		return query(h.Raw(), b)
	}, i.objectOpts...)
	if err != nil {
		return "", err
	}
	return ParseUnicodeInfo(ntbuf.NewReader(buf))
}

func (i *Inspector) release(h *sysapi.OwnedHandle, pid uint32) {
	if err := h.Close(); err != nil {
		i.logger.Debug("handle release failed", "pid", pid, "error", err)
	}
}
