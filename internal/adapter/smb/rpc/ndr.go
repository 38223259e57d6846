package rpc

import (
	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// ndrReader is a minimal NDR20 little-endian reader. Alignment is relative
// to the start of the stub.
type ndrReader struct {
	*smbenc.Reader
}

func newNDRReader(stub []byte) ndrReader {
	return ndrReader{smbenc.NewReader(stub)}
}

func (r ndrReader) align(n int) {
	if rem := r.Position() % n; rem != 0 {
		r.Skip(n - rem)
	}
}

func (r ndrReader) uint16() uint16 {
	r.align(2)
	return r.ReadUint16()
}

func (r ndrReader) uint32() uint32 {
	r.align(4)
	return r.ReadUint32()
}

// pointer reads a referent ID and reports whether it is non-null.
func (r ndrReader) pointer() bool {
	return r.uint32() != 0
}

// wideString reads a conformant varying UTF-16 string body.
func (r ndrReader) wideString() string {
	r.uint32() // max count
	r.uint32() // offset
	actual := int(r.uint32())
	b := r.ReadBytes(2 * actual)
	if r.Err() != nil {
		return ""
	}
	s, err := types.DecodeUTF16LE(b)
	if err != nil {
		return ""
	}
	return s
}

// uniqueWideString reads a unique pointer followed by its string when set.
func (r ndrReader) uniqueWideString() (string, bool) {
	if !r.pointer() {
		return "", false
	}
	return r.wideString(), true
}

func (r ndrReader) guid() uuid.UUID {
	r.align(4)
	return r.ReadGUID()
}

// ndrWriter mirrors ndrReader for building stubs.
type ndrWriter struct {
	*smbenc.Writer
	nextRef uint32
}

func newNDRWriter() *ndrWriter {
	return &ndrWriter{Writer: smbenc.NewWriter(64), nextRef: 0x00020000}
}

func (w *ndrWriter) uint16(v uint16) {
	w.Pad(2)
	w.WriteUint16(v)
}

func (w *ndrWriter) uint32(v uint32) {
	w.Pad(4)
	w.WriteUint32(v)
}

func (w *ndrWriter) pointer(present bool) {
	if !present {
		w.uint32(0)
		return
	}
	w.uint32(w.nextRef)
	w.nextRef += 4
}

func (w *ndrWriter) wideString(s string) {
	b := append(types.EncodeUTF16LE(s), 0, 0)
	n := uint32(len(b) / 2)
	w.uint32(n)
	w.uint32(0)
	w.uint32(n)
	w.WriteBytes(b)
}

func (w *ndrWriter) uniqueWideString(s string, present bool) {
	w.pointer(present)
	if present {
		w.wideString(s)
	}
}

func (w *ndrWriter) guid(g uuid.UUID) {
	w.Pad(4)
	w.WriteGUID(g)
}
