// Package smb1 encodes and decodes the small slice of SMB1 the server
// speaks: the 32-byte header, NEGOTIATE in both directions, and the empty
// error response sent for everything after it.
//
// Reference: [MS-CIFS] 2.2.3.1, 2.2.4.52.
package smb1

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

var (
	ErrMessageTooShort   = errors.New("message too short for SMB1 header")
	ErrInvalidProtocolID = errors.New("invalid SMB1 protocol ID")
	ErrUnexpectedCommand = errors.New("unexpected SMB1 command")
)

// Header is the fixed SMB1 header. SecurityFeatures is carried raw; the
// signing engine owns its meaning.
type Header struct {
	Command          uint8
	Status           types.Status
	Flags            uint8
	Flags2           uint16
	PIDHigh          uint16
	SecurityFeatures [8]byte
	TID              uint16
	PIDLow           uint16
	UID              uint16
	MID              uint16
}

func ParseHeader(data []byte) (*Header, error) {
	if len(data) < types.SMB1HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(data))
	}
	if binary.LittleEndian.Uint32(data) != types.SMB1ProtocolID {
		return nil, ErrInvalidProtocolID
	}
	r := smbenc.NewReader(data[4:types.SMB1HeaderSize])
	h := &Header{
		Command: r.ReadUint8(),
		Status:  types.Status(r.ReadUint32()),
		Flags:   r.ReadUint8(),
		Flags2:  r.ReadUint16(),
		PIDHigh: r.ReadUint16(),
	}
	copy(h.SecurityFeatures[:], r.ReadBytes(8))
	r.Skip(2)
	h.TID = r.ReadUint16()
	h.PIDLow = r.ReadUint16()
	h.UID = r.ReadUint16()
	h.MID = r.ReadUint16()
	return h, r.Err()
}

func (h *Header) encode(w *smbenc.Writer) {
	w.WriteUint32(types.SMB1ProtocolID)
	w.WriteUint8(h.Command)
	w.WriteUint32(uint32(h.Status))
	w.WriteUint8(h.Flags)
	w.WriteUint16(h.Flags2)
	w.WriteUint16(h.PIDHigh)
	w.WriteBytes(h.SecurityFeatures[:])
	w.WriteUint16(0)
	w.WriteUint16(h.TID)
	w.WriteUint16(h.PIDLow)
	w.WriteUint16(h.UID)
	w.WriteUint16(h.MID)
}

// Reply derives a response header from a request header.
func (h *Header) Reply(status types.Status) *Header {
	return &Header{
		Command: h.Command,
		Status:  status,
		Flags:   types.SMB1FlagsReply | types.SMB1FlagsCaseInsensitive,
		Flags2:  types.SMB1Flags2LongNames | types.SMB1Flags2NTStatus | types.SMB1Flags2Unicode | (h.Flags2 & types.SMB1Flags2ExtendedSec),
		PIDHigh: h.PIDHigh,
		TID:     h.TID,
		PIDLow:  h.PIDLow,
		UID:     h.UID,
		MID:     h.MID,
	}
}

// ErrorResponse is a reply with the given status and empty parameter and
// data blocks.
func ErrorResponse(req *Header, status types.Status) []byte {
	w := smbenc.NewWriter(types.SMB1HeaderSize + 3)
	req.Reply(status).encode(w)
	w.WriteUint8(0)  // WordCount
	w.WriteUint16(0) // ByteCount
	return w.Bytes()
}
