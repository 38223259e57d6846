package smbenc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrShortRead      = errors.New("smbenc: short read")
	ErrExpectMismatch = errors.New("smbenc: expect mismatch")
	ErrUnterminated   = errors.New("smbenc: unterminated string")
)

// Reader walks a byte slice. Returned slices are copies unless stated.
type Reader struct {
	data []byte
	pos  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.pos, len(r.data)-r.pos)
		return false
	}
	return true
}

func (r *Reader) ReadUint8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *Reader) ReadUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *Reader) ReadUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *Reader) ReadUint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// ReadBytes copies the next n bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:])
	r.pos += n
	return b
}

// ReadGUID decodes a 16-byte GUID in the mixed-endian Windows layout.
func (r *Reader) ReadGUID() uuid.UUID {
	var g uuid.UUID
	if !r.need(16) {
		return g
	}
	copy(g[:], r.data[r.pos:r.pos+16])
	r.pos += 16
	return swapGUID(g)
}

// ReadCString reads bytes up to a NUL terminator and consumes the terminator.
func (r *Reader) ReadCString() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.data[r.pos:], 0)
	if i < 0 {
		r.err = fmt.Errorf("%w at offset %d", ErrUnterminated, r.pos)
		return ""
	}
	s := string(r.data[r.pos : r.pos+i])
	r.pos += i + 1
	return s
}

func (r *Reader) Skip(n int) {
	if r.need(n) {
		r.pos += n
	}
}

// Seek moves to an absolute offset within the buffer.
func (r *Reader) Seek(offset int) {
	if r.err != nil {
		return
	}
	if offset < 0 || offset > len(r.data) {
		r.err = fmt.Errorf("%w: seek to %d beyond %d", ErrShortRead, offset, len(r.data))
		return
	}
	r.pos = offset
}

// ExpectUint16 reads a uint16 and fails unless it equals want.
func (r *Reader) ExpectUint16(want uint16) {
	start := r.pos
	v := r.ReadUint16()
	if r.err == nil && v != want {
		r.err = fmt.Errorf("%w: expected 0x%04X, got 0x%04X at offset %d", ErrExpectMismatch, want, v, start)
	}
}

// Slice returns data[offset:offset+n] without moving the cursor. The result
// aliases the underlying buffer.
func Slice(data []byte, offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(data) {
		return nil, fmt.Errorf("%w: range [%d,%d) outside %d bytes", ErrShortRead, offset, offset+n, len(data))
	}
	return data[offset : offset+n], nil
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) Remaining() int { return max(len(r.data)-r.pos, 0) }

func (r *Reader) Position() int { return r.pos }

func swapGUID(g uuid.UUID) uuid.UUID {
	g[0], g[1], g[2], g[3] = g[3], g[2], g[1], g[0]
	g[4], g[5] = g[5], g[4]
	g[6], g[7] = g[7], g[6]
	return g
}
