package header

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

const (
	// HeaderSize is the fixed length of an SMB2 header.
	HeaderSize = 64

	FlagsOffset     = 16
	SignatureOffset = 48
	SignatureSize   = 16
)

var (
	ErrMessageTooShort   = errors.New("message too short for SMB2 header")
	ErrInvalidProtocolID = errors.New("invalid SMB2 protocol ID")
	ErrInvalidHeaderSize = errors.New("invalid SMB2 header structure size")
)

// SMB2Header is a decoded SMB2 sync header.
type SMB2Header struct {
	CreditCharge uint16
	Status       types.Status
	Command      types.Command
	Credits      uint16
	Flags        types.HeaderFlags
	NextCommand  uint32
	MessageID    uint64
	Reserved     uint32
	TreeID       uint32
	SessionID    uint64
	Signature    [SignatureSize]byte
}

// Parse decodes the header at the start of data.
func Parse(data []byte) (*SMB2Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != types.SMB2ProtocolID {
		return nil, ErrInvalidProtocolID
	}
	if size := binary.LittleEndian.Uint16(data[4:6]); size != HeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHeaderSize, size)
	}

	h := &SMB2Header{
		CreditCharge: binary.LittleEndian.Uint16(data[6:8]),
		Status:       types.Status(binary.LittleEndian.Uint32(data[8:12])),
		Command:      types.Command(binary.LittleEndian.Uint16(data[12:14])),
		Credits:      binary.LittleEndian.Uint16(data[14:16]),
		Flags:        types.HeaderFlags(binary.LittleEndian.Uint32(data[16:20])),
		NextCommand:  binary.LittleEndian.Uint32(data[20:24]),
		MessageID:    binary.LittleEndian.Uint64(data[24:32]),
		Reserved:     binary.LittleEndian.Uint32(data[32:36]),
		TreeID:       binary.LittleEndian.Uint32(data[36:40]),
		SessionID:    binary.LittleEndian.Uint64(data[40:48]),
	}
	copy(h.Signature[:], data[SignatureOffset:SignatureOffset+SignatureSize])
	return h, nil
}

// Encode appends the wire form of h to dst and returns the extended slice.
func (h *SMB2Header) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, types.SMB2ProtocolID)
	dst = binary.LittleEndian.AppendUint16(dst, HeaderSize)
	dst = binary.LittleEndian.AppendUint16(dst, h.CreditCharge)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.Status))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(h.Command))
	dst = binary.LittleEndian.AppendUint16(dst, h.Credits)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.Flags))
	dst = binary.LittleEndian.AppendUint32(dst, h.NextCommand)
	dst = binary.LittleEndian.AppendUint64(dst, h.MessageID)
	dst = binary.LittleEndian.AppendUint32(dst, h.Reserved)
	dst = binary.LittleEndian.AppendUint32(dst, h.TreeID)
	dst = binary.LittleEndian.AppendUint64(dst, h.SessionID)
	return append(dst, h.Signature[:]...)
}

// Bytes returns the 64-byte encoding of h.
func (h *SMB2Header) Bytes() []byte {
	return h.Encode(make([]byte, 0, HeaderSize))
}

func (h *SMB2Header) IsResponse() bool { return h.Flags.IsResponse() }
func (h *SMB2Header) IsSigned() bool   { return h.Flags.IsSigned() }

// NewResponse builds the response header for req. Signature and signed flag
// are left clear; signing fills them in.
func NewResponse(req *SMB2Header, status types.Status, credits uint16) *SMB2Header {
	return &SMB2Header{
		CreditCharge: req.CreditCharge,
		Status:       status,
		Command:      req.Command,
		Credits:      credits,
		Flags:        types.FlagServerToRedir,
		MessageID:    req.MessageID,
		Reserved:     req.Reserved,
		TreeID:       req.TreeID,
		SessionID:    req.SessionID,
	}
}

// IsSMB2 reports whether data starts with the SMB2 marker.
func IsSMB2(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == types.SMB2ProtocolID
}

// IsSMB1 reports whether data starts with the SMB1 marker.
func IsSMB1(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == types.SMB1ProtocolID
}
