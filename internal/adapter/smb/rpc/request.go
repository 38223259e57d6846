package rpc

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
)

// RequestPDU is a request PDU [C706 12.6.4.9]. Object is present only
// when the object UUID flag is set; the auth fields only when AuthLength
// is non-zero.
type RequestPDU struct {
	Header     Header
	AllocHint  uint32
	ContextID  uint16
	Opnum      uint16
	Object     *uuid.UUID
	Stub       []byte
	AuthPad    []byte
	SecTrailer *SecTrailer
	AuthValue  []byte
}

// ParseRequest decodes a single request fragment.
func ParseRequest(data []byte) (*RequestPDU, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.PacketType != PDURequest {
		return nil, fmt.Errorf("%w: type %d", ErrNotRequest, hdr.PacketType)
	}
	frag := int(hdr.FragLength)
	if frag < HeaderSize+8 || frag > len(data) {
		return nil, fmt.Errorf("%w: frag_length %d, have %d bytes", ErrBadFragLength, frag, len(data))
	}
	data = data[:frag]

	r := smbenc.NewReader(data)
	r.Skip(HeaderSize)
	p := &RequestPDU{
		Header:    *hdr,
		AllocHint: r.ReadUint32(),
		ContextID: r.ReadUint16(),
		Opnum:     r.ReadUint16(),
	}
	if hdr.Flags&FlagObjectUUID != 0 {
		obj := r.ReadGUID()
		p.Object = &obj
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("request PDU: %w", err)
	}

	stubEnd := frag
	if hdr.AuthLength > 0 {
		trailerAt := frag - int(hdr.AuthLength) - SecTrailerSize
		if trailerAt < r.Position() {
			return nil, fmt.Errorf("%w: auth_length %d", ErrBadFragLength, hdr.AuthLength)
		}
		tr := smbenc.NewReader(data[trailerAt:])
		p.SecTrailer = &SecTrailer{
			AuthType:      tr.ReadUint8(),
			AuthLevel:     tr.ReadUint8(),
			AuthPadLength: tr.ReadUint8(),
		}
		tr.Skip(1)
		p.SecTrailer.AuthContextID = tr.ReadUint32()
		p.AuthValue = tr.ReadBytes(int(hdr.AuthLength))
		if err := tr.Err(); err != nil {
			return nil, fmt.Errorf("request PDU auth verifier: %w", err)
		}
		stubEnd = trailerAt - int(p.SecTrailer.AuthPadLength)
		if stubEnd < r.Position() {
			return nil, fmt.Errorf("%w: auth pad %d", ErrBadFragLength, p.SecTrailer.AuthPadLength)
		}
		p.AuthPad = append([]byte(nil), data[stubEnd:trailerAt]...)
	}
	p.Stub = r.ReadBytes(stubEnd - r.Position())
	return p, r.Err()
}

// Encode serializes the PDU, recomputing FragLength, AuthLength, the
// object flag and, when an auth verifier is present, the 16-byte stub pad.
// A zero AllocHint is filled with the stub length.
func (p *RequestPDU) Encode() []byte {
	h := p.Header
	h.VersionMajor = 5
	h.PacketType = PDURequest
	if h.DataRep == ([4]byte{}) {
		h.DataRep = littleEndianDrep
	}
	if h.Flags == 0 {
		h.Flags = FlagFirstFrag | FlagLastFrag
	}
	if p.Object != nil {
		h.Flags |= FlagObjectUUID
	} else {
		h.Flags &^= FlagObjectUUID
	}
	allocHint := p.AllocHint
	if allocHint == 0 {
		allocHint = uint32(len(p.Stub))
	}

	var pad int
	h.AuthLength = 0
	if p.SecTrailer != nil {
		pad = (16 - len(p.Stub)%16) % 16
		h.AuthLength = uint16(len(p.AuthValue))
	}

	w := smbenc.NewWriter(HeaderSize + 8 + 16 + len(p.Stub) + pad + SecTrailerSize + len(p.AuthValue))
	h.encode(w)
	w.WriteUint32(allocHint)
	w.WriteUint16(p.ContextID)
	w.WriteUint16(p.Opnum)
	if p.Object != nil {
		w.WriteGUID(*p.Object)
	}
	w.WriteBytes(p.Stub)
	if p.SecTrailer != nil {
		w.WriteZeros(pad)
		w.WriteUint8(p.SecTrailer.AuthType)
		w.WriteUint8(p.SecTrailer.AuthLevel)
		w.WriteUint8(uint8(pad))
		w.WriteUint8(0)
		w.WriteUint32(p.SecTrailer.AuthContextID)
		w.WriteBytes(p.AuthValue)
	}
	w.PutUint16At(8, uint16(w.Len()))
	return w.Bytes()
}

// Call decodes the stub for the endpoint the PDU arrived on.
func (p *RequestPDU) Call(ep Endpoint) (Call, error) {
	return Decode(ep, p.Opnum, p.Stub)
}
