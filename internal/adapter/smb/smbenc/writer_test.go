package smbenc

import (
	"bytes"
	"testing"
)

func TestWriterIntegers(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0xAA)
	w.WriteUint16(0x0201)
	w.WriteUint32(0x04030201)
	w.WriteUint64(0x0807060504030201)

	want := []byte{
		0xAA,
		0x01, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %x, want %x", w.Bytes(), want)
	}
}

func TestWriterPad(t *testing.T) {
	tests := []struct {
		start, align, want int
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{13, 8, 16},
		{3, 0, 3},
	}
	for _, tt := range tests {
		w := NewWriter(32)
		w.WriteZeros(tt.start)
		w.Pad(tt.align)
		if w.Len() != tt.want {
			t.Errorf("Pad(%d) from %d: len %d, want %d", tt.align, tt.start, w.Len(), tt.want)
		}
	}
}

func TestWriterPadFrom(t *testing.T) {
	w := NewWriter(8)
	w.WriteZeros(2)
	w.PadFrom(64+36, 8) // body starts at 100, so 102 aligns to 104
	if w.Len() != 4 {
		t.Errorf("len %d, want 4", w.Len())
	}
}

func TestWriterBackpatch(t *testing.T) {
	w := NewWriter(8)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.PutUint16At(0, 0xBEEF)
	w.PutUint32At(2, 0x11223344)
	want := []byte{0xEF, 0xBE, 0x44, 0x33, 0x22, 0x11}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %x", w.Bytes())
	}

	w.PutUint32At(4, 1)
	if w.Err() == nil {
		t.Fatal("expected out-of-bounds error")
	}
	w.WriteUint8(1)
	if w.Len() != 6 {
		t.Error("write after error must be ignored")
	}
}

func TestWriterCString(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0x02)
	w.WriteCString("NT LM 0.12")
	if got := w.Bytes(); !bytes.Equal(got, []byte("\x02NT LM 0.12\x00")) {
		t.Errorf("got %q", got)
	}
}
