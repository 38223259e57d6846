package smbenc

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestReaderIntegers(t *testing.T) {
	data := []byte{
		0xAA,
		0x01, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}
	r := NewReader(data)

	if v := r.ReadUint8(); v != 0xAA {
		t.Errorf("ReadUint8 = 0x%02X", v)
	}
	if v := r.ReadUint16(); v != 0x0201 {
		t.Errorf("ReadUint16 = 0x%04X", v)
	}
	if v := r.ReadUint32(); v != 0x04030201 {
		t.Errorf("ReadUint32 = 0x%08X", v)
	}
	if v := r.ReadUint64(); v != 0x0807060504030201 {
		t.Errorf("ReadUint64 = 0x%016X", v)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if r.Remaining() != 0 || r.Position() != len(data) {
		t.Errorf("cursor at %d, remaining %d", r.Position(), r.Remaining())
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0x01})
	_ = r.ReadUint32()
	if !errors.Is(r.Err(), ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", r.Err())
	}
	if v := r.ReadUint8(); v != 0 {
		t.Errorf("read after error returned %d", v)
	}
	if r.Position() != 0 {
		t.Errorf("position advanced after error: %d", r.Position())
	}
}

func TestReaderReadBytesCopies(t *testing.T) {
	data := []byte{1, 2, 3}
	r := NewReader(data)
	b := r.ReadBytes(2)
	b[0] = 9
	if data[0] != 1 {
		t.Error("ReadBytes aliases the input")
	}
	if r.ReadBytes(5) != nil || r.Err() == nil {
		t.Error("expected short read")
	}
}

func TestReaderCString(t *testing.T) {
	r := NewReader([]byte("NT LM 0.12\x00\x00SMB 2.???\x00tail"))
	if s := r.ReadCString(); s != "NT LM 0.12" {
		t.Errorf("first = %q", s)
	}
	if s := r.ReadCString(); s != "" {
		t.Errorf("empty entry = %q", s)
	}
	if s := r.ReadCString(); s != "SMB 2.???" {
		t.Errorf("third = %q", s)
	}
	_ = r.ReadCString()
	if !errors.Is(r.Err(), ErrUnterminated) {
		t.Errorf("expected ErrUnterminated, got %v", r.Err())
	}
}

func TestReaderExpectUint16(t *testing.T) {
	r := NewReader([]byte{0x24, 0x00, 0x41, 0x00})
	r.ExpectUint16(36)
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	r.ExpectUint16(36)
	if !errors.Is(r.Err(), ErrExpectMismatch) {
		t.Errorf("expected ErrExpectMismatch, got %v", r.Err())
	}
}

func TestReaderSeekAndSkip(t *testing.T) {
	r := NewReader(make([]byte, 10))
	r.Skip(4)
	r.Seek(8)
	if r.Position() != 8 {
		t.Errorf("position = %d", r.Position())
	}
	r.Seek(11)
	if r.Err() == nil {
		t.Error("seek beyond end should fail")
	}
}

func TestGUIDRoundTrip(t *testing.T) {
	g := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	w := NewWriter(16)
	w.WriteGUID(g)

	want := []byte{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if string(w.Bytes()) != string(want) {
		t.Fatalf("wire GUID = %x", w.Bytes())
	}

	if back := NewReader(w.Bytes()).ReadGUID(); back != g {
		t.Errorf("decoded %s, want %s", back, g)
	}
}

func TestSlice(t *testing.T) {
	data := []byte{0, 1, 2, 3}
	if b, err := Slice(data, 1, 2); err != nil || b[0] != 1 || len(b) != 2 {
		t.Errorf("Slice = %v, %v", b, err)
	}
	if _, err := Slice(data, 3, 2); err == nil {
		t.Error("expected out-of-range error")
	}
}
