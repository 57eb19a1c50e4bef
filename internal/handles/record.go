package handles

import (
	"fmt"

	"github.com/graaaaa/scr-multilauncher/internal/ntbuf"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// HandleRecord is one entry of a process handle table snapshot. Value is
// only meaningful inside the process the snapshot was taken from.
type HandleRecord struct {
	Value           uintptr
	HandleCount     uint64
	PointerCount    uint64
	GrantedAccess   uint32
	ObjectTypeIndex uint32
	Attributes      uint32
}

// ParseHandleSnapshot decodes a PROCESS_HANDLE_SNAPSHOT_INFORMATION buffer.
// The declared handle count must fit in the buffer.
func ParseHandleSnapshot(r *ntbuf.Reader) ([]HandleRecord, error) {
	layout := sysapi.HandleSnapshotLayoutFor(r.PointerSize())

	count, err := r.Pointer(layout.NumberOfHandles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	avail := uint64(0)
	if r.Len() > layout.Header {
		avail = uint64((r.Len() - layout.Header) / layout.EntrySize)
	}
	if count > avail {
		return nil, fmt.Errorf("%w: %d handles declared, room for %d", ErrMalformedSnapshot, count, avail)
	}

	records := make([]HandleRecord, 0, count)
	for i := 0; i < int(count); i++ {
		off := layout.Header + i*layout.EntrySize
		rec, err := readRecord(r, off, layout)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedSnapshot, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readRecord(r *ntbuf.Reader, off int, layout sysapi.HandleSnapshotLayout) (HandleRecord, error) {
	var rec HandleRecord
	value, err := r.Pointer(off + layout.HandleValue)
	if err != nil {
		return rec, err
	}
	if rec.HandleCount, err = r.Pointer(off + layout.HandleCount); err != nil {
		return rec, err
	}
	if rec.PointerCount, err = r.Pointer(off + layout.PointerCount); err != nil {
		return rec, err
	}
	if rec.GrantedAccess, err = r.Uint32(off + layout.GrantedAccess); err != nil {
		return rec, err
	}
	if rec.ObjectTypeIndex, err = r.Uint32(off + layout.ObjectTypeIndex); err != nil {
		return rec, err
	}
	if rec.Attributes, err = r.Uint32(off + layout.HandleAttributes); err != nil {
		return rec, err
	}
	rec.Value = uintptr(value)
	return rec, nil
}

// ParseUnicodeInfo decodes the UNICODE_STRING that starts both
// OBJECT_NAME_INFORMATION and OBJECT_TYPE_INFORMATION.
func ParseUnicodeInfo(r *ntbuf.Reader) (string, error) {
	return r.UnicodeString(0)
}
