// Package rpc decodes DCE/RPC request PDUs carried over SMB named pipes.
//
// Request stubs are resolved through a two-level discriminant: the pipe
// endpoint first, then the operation number. Only once both are known is
// the stub decoded into a typed call; anything unrecognized stays an
// OpaqueCall holding the raw bytes.
//
// Reference: [C706] DCE 1.1: Remote Procedure Call, chapter 12
package rpc

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
)

// PDU types used by the connection-oriented protocol [C706 12.6.4].
const (
	PDURequest  uint8 = 0
	PDUResponse uint8 = 2
	PDUFault    uint8 = 3
	PDUBind     uint8 = 11
	PDUBindAck  uint8 = 12
)

// PFC flags [C706 12.6.3.1].
const (
	FlagFirstFrag  uint8 = 0x01
	FlagLastFrag   uint8 = 0x02
	FlagObjectUUID uint8 = 0x80
)

// HeaderSize is the common connection-oriented header length.
const HeaderSize = 16

// SecTrailerSize is the fixed part of the auth verifier.
const SecTrailerSize = 8

var (
	ErrShortPDU      = errors.New("dcerpc PDU too short")
	ErrNotRequest    = errors.New("not a request PDU")
	ErrBadFragLength = errors.New("fragment length does not match PDU")
)

// littleEndianDrep is NDR little-endian, ASCII, IEEE floats.
var littleEndianDrep = [4]byte{0x10, 0x00, 0x00, 0x00}

// Header is the 16-byte PDU header:
//
//	Offset  Size  Field
//	0       1     rpc_vers (5)
//	1       1     rpc_vers_minor
//	2       1     ptype
//	3       1     pfc_flags
//	4       4     packed_drep
//	8       2     frag_length
//	10      2     auth_length
//	12      4     call_id
type Header struct {
	VersionMajor uint8
	VersionMinor uint8
	PacketType   uint8
	Flags        uint8
	DataRep      [4]byte
	FragLength   uint16
	AuthLength   uint16
	CallID       uint32
}

// ParseHeader reads the common header from data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPDU, len(data))
	}
	r := smbenc.NewReader(data)
	h := &Header{
		VersionMajor: r.ReadUint8(),
		VersionMinor: r.ReadUint8(),
		PacketType:   r.ReadUint8(),
		Flags:        r.ReadUint8(),
	}
	copy(h.DataRep[:], r.ReadBytes(4))
	h.FragLength = r.ReadUint16()
	h.AuthLength = r.ReadUint16()
	h.CallID = r.ReadUint32()
	return h, r.Err()
}

func (h *Header) encode(w *smbenc.Writer) {
	w.WriteUint8(h.VersionMajor)
	w.WriteUint8(h.VersionMinor)
	w.WriteUint8(h.PacketType)
	w.WriteUint8(h.Flags)
	w.WriteBytes(h.DataRep[:])
	w.WriteUint16(h.FragLength)
	w.WriteUint16(h.AuthLength)
	w.WriteUint32(h.CallID)
}

// SecTrailer is sec_trailer [C706 13.2.6.1].
type SecTrailer struct {
	AuthType      uint8
	AuthLevel     uint8
	AuthPadLength uint8
	AuthContextID uint32
}
