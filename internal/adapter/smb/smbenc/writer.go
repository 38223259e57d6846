package smbenc

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Writer appends little-endian fields to a growing buffer.
type Writer struct {
	buf []byte
	err error
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) WriteUint8(v uint8) {
	if w.err == nil {
		w.buf = append(w.buf, v)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	}
}

func (w *Writer) WriteUint32(v uint32) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	}
}

func (w *Writer) WriteUint64(v uint64) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	}
}

func (w *Writer) WriteBytes(b []byte) {
	if w.err == nil {
		w.buf = append(w.buf, b...)
	}
}

func (w *Writer) WriteZeros(n int) {
	if w.err == nil && n > 0 {
		w.buf = append(w.buf, make([]byte, n)...)
	}
}

// WriteGUID encodes g in the mixed-endian Windows layout.
func (w *Writer) WriteGUID(g uuid.UUID) {
	s := swapGUID(g)
	w.WriteBytes(s[:])
}

// WriteCString writes s followed by a NUL byte.
func (w *Writer) WriteCString(s string) {
	w.WriteBytes([]byte(s))
	w.WriteUint8(0)
}

// Pad appends zeros until Len is a multiple of alignment.
func (w *Writer) Pad(alignment int) {
	if w.err != nil || alignment <= 0 {
		return
	}
	if rem := len(w.buf) % alignment; rem != 0 {
		w.WriteZeros(alignment - rem)
	}
}

// PadFrom aligns relative to base, for structures whose alignment is defined
// from the start of an enclosing message rather than this buffer.
func (w *Writer) PadFrom(base, alignment int) {
	if w.err != nil || alignment <= 0 {
		return
	}
	if rem := (base + len(w.buf)) % alignment; rem != 0 {
		w.WriteZeros(alignment - rem)
	}
}

// WriteAt overwrites already written bytes.
func (w *Writer) WriteAt(offset int, b []byte) {
	if w.err != nil {
		return
	}
	if offset < 0 || offset+len(b) > len(w.buf) {
		w.err = fmt.Errorf("smbenc: WriteAt out of bounds: offset %d + %d > %d", offset, len(b), len(w.buf))
		return
	}
	copy(w.buf[offset:], b)
}

func (w *Writer) PutUint16At(offset int, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.WriteAt(offset, b[:])
}

func (w *Writer) PutUint32At(offset int, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.WriteAt(offset, b[:])
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Err() error { return w.err }
