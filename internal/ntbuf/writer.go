package ntbuf

import "encoding/binary"

// Writer lays out little-endian records into a fixed buffer. It mirrors
// Reader and is used to build native-format buffers for fakes and tests.
type Writer struct {
	Buf     []byte
	ptrSize int
}

// NewWriter wraps buf for writing with the given pointer width.
func NewWriter(buf []byte, ptrSize int) *Writer {
	if ptrSize != 4 && ptrSize != 8 {
		ptrSize = PointerSize
	}
	return &Writer{Buf: buf, ptrSize: ptrSize}
}

// Fits reports whether n bytes at off are inside the buffer.
func (w *Writer) Fits(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(w.Buf)
}

// PutUint16 writes v at off.
func (w *Writer) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(w.Buf[off:], v)
}

// PutUint32 writes v at off.
func (w *Writer) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.Buf[off:], v)
}

// PutPointer writes a pointer-sized value at off.
func (w *Writer) PutPointer(off int, v uint64) {
	if w.ptrSize == 4 {
		binary.LittleEndian.PutUint32(w.Buf[off:], uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(w.Buf[off:], v)
}

// PutUnicodeString writes a UNICODE_STRING header at off whose data is
// copied to dataOff. The embedded pointer is absolute, based on the
// buffer's address. It returns the number of data bytes written.
func (w *Writer) PutUnicodeString(off, dataOff int, s string) int {
	data := EncodeUTF16(s)
	w.PutUint16(off, uint16(len(data)))
	w.PutUint16(off+2, uint16(len(data)+2))
	if len(data) == 0 {
		w.PutPointer(off+w.ptrSize, 0)
		return 0
	}
	copy(w.Buf[dataOff:], data)
	w.PutPointer(off+w.ptrSize, uint64(Addr(w.Buf))+uint64(dataOff))
	return len(data)
}
