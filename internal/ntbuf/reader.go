package ntbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/text/encoding/unicode"
)

// PointerSize is the size in bytes of a native pointer.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))

// ErrOutOfBounds is returned when a record offset, length or embedded
// pointer falls outside the buffer.
var ErrOutOfBounds = errors.New("offset out of bounds")

// Addr returns the address of the first byte of buf, or 0 for an empty
// buffer. Native queries embed absolute pointers relative to this address.
func Addr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// Reader decodes little-endian fields from a buffer returned by a native
// query. Every access is bounds-checked; nothing is dereferenced directly.
type Reader struct {
	buf     []byte
	ptrSize int
	base    uint64
}

// NewReader returns a Reader over buf using the native pointer size and the
// buffer's own address as the base for embedded pointers.
func NewReader(buf []byte) *Reader {
	return NewReaderAt(buf, PointerSize, uint64(Addr(buf)))
}

// NewReaderAt returns a Reader with an explicit pointer size (4 or 8) and
// base address.
func NewReaderAt(buf []byte, ptrSize int, base uint64) *Reader {
	if ptrSize != 4 && ptrSize != 8 {
		ptrSize = PointerSize
	}
	return &Reader{buf: buf, ptrSize: ptrSize, base: base}
}

// Len returns the buffer length.
func (r *Reader) Len() int { return len(r.buf) }

// PointerSize returns the pointer width used for pointer-sized fields.
func (r *Reader) PointerSize() int { return r.ptrSize }

// Slice returns n bytes starting at off.
func (r *Reader) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(r.buf) || n > len(r.buf)-off {
		return nil, fmt.Errorf("%w: [%d:+%d] of %d", ErrOutOfBounds, off, n, len(r.buf))
	}
	return r.buf[off : off+n], nil
}

// Uint16 reads a uint16 at off.
func (r *Reader) Uint16(off int) (uint16, error) {
	b, err := r.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a uint32 at off.
func (r *Reader) Uint32(off int) (uint32, error) {
	b, err := r.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Pointer reads a pointer-sized unsigned value at off.
func (r *Reader) Pointer(off int) (uint64, error) {
	b, err := r.Slice(off, r.ptrSize)
	if err != nil {
		return 0, err
	}
	if r.ptrSize == 4 {
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

// UnicodeStringSize is the size of a UNICODE_STRING for this pointer width.
func (r *Reader) UnicodeStringSize() int {
	return 2 * r.ptrSize
}

// UnicodeString decodes the UNICODE_STRING structure at off. The structure
// is a byte length, a maximum length and a pointer (aligned to the pointer
// width) to UTF-16 data, which must lie inside the buffer.
func (r *Reader) UnicodeString(off int) (string, error) {
	length, err := r.Uint16(off)
	if err != nil {
		return "", err
	}
	ptr, err := r.Pointer(off + r.ptrSize)
	if err != nil {
		return "", err
	}
	if length == 0 || ptr == 0 {
		return "", nil
	}
	if length%2 != 0 {
		return "", fmt.Errorf("%w: odd UTF-16 length %d", ErrOutOfBounds, length)
	}
	if ptr < r.base {
		return "", fmt.Errorf("%w: pointer %#x below buffer %#x", ErrOutOfBounds, ptr, r.base)
	}
	rel := ptr - r.base
	if rel > uint64(len(r.buf)) {
		return "", fmt.Errorf("%w: pointer %#x past buffer end", ErrOutOfBounds, ptr)
	}
	raw, err := r.Slice(int(rel), int(length))
	if err != nil {
		return "", err
	}
	return DecodeUTF16(raw)
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeUTF16 converts little-endian UTF-16 bytes to a Go string.
func DecodeUTF16(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode utf-16: %w", err)
	}
	return string(out), nil
}

// EncodeUTF16 converts s to little-endian UTF-16 bytes without a terminator.
func EncodeUTF16(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}
