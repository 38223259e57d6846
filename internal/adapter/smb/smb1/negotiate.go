package smb1

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

const dialectBufferFormat = 0x02

// NegotiateRequest is SMB_COM_NEGOTIATE as sent by a client.
type NegotiateRequest struct {
	Header   *Header
	Dialects []string
}

func ParseNegotiateRequest(data []byte) (*NegotiateRequest, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Command != types.SMB1CommandNegotiate {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedCommand, h.Command)
	}

	r := smbenc.NewReader(data[types.SMB1HeaderSize:])
	r.Skip(2 * int(r.ReadUint8())) // parameter words, normally none
	n := int(r.ReadUint16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("negotiate request: %w", err)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("negotiate request: byte count %d exceeds %d remaining: %w", n, r.Remaining(), smbenc.ErrShortRead)
	}

	req := &NegotiateRequest{Header: h}
	start := r.Position()
	for r.Position()-start < n {
		if f := r.ReadUint8(); f != dialectBufferFormat && r.Err() == nil {
			return nil, fmt.Errorf("negotiate request: buffer format 0x%02X", f)
		}
		req.Dialects = append(req.Dialects, r.ReadCString())
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("negotiate request: %w", err)
		}
	}
	return req, nil
}

// BuildNegotiateRequest is the client form, used by the probe and tests.
func BuildNegotiateRequest(dialects []string) []byte {
	var body []byte
	for _, d := range dialects {
		body = append(body, dialectBufferFormat)
		body = append(body, d...)
		body = append(body, 0)
	}
	h := &Header{
		Command: types.SMB1CommandNegotiate,
		Flags:   types.SMB1FlagsCaseInsensitive,
		Flags2:  types.SMB1Flags2LongNames | types.SMB1Flags2ExtendedSec | types.SMB1Flags2NTStatus | types.SMB1Flags2Unicode,
	}
	w := smbenc.NewWriter(types.SMB1HeaderSize + 3 + len(body))
	h.encode(w)
	w.WriteUint8(0)
	w.WriteUint16(uint16(len(body)))
	w.WriteBytes(body)
	return w.Bytes()
}

// NegativeNegotiateResponse tells the client none of its dialects matched:
// WordCount 1, DialectIndex 0xFFFF, no data.
func NegativeNegotiateResponse(req *Header) []byte {
	w := smbenc.NewWriter(types.SMB1HeaderSize + 5)
	req.Reply(types.StatusSuccess).encode(w)
	w.WriteUint8(1)
	w.WriteUint16(types.SMB1DialectNotSupported)
	w.WriteUint16(0)
	return w.Bytes()
}

// NegotiateResponse is the extended-security NT LM 0.12 response.
type NegotiateResponse struct {
	DialectIndex   uint16
	SecurityMode   uint8
	MaxMpxCount    uint16
	MaxNumberVcs   uint16
	MaxBufferSize  uint32
	MaxRawSize     uint32
	SessionKey     uint32
	Capabilities   uint32
	SystemTime     time.Time
	ServerTimeZone int16
	ServerGUID     uuid.UUID
	SecurityBlob   []byte
}

// Encode builds the full message answering req.
func (r *NegotiateResponse) Encode(req *Header) []byte {
	h := req.Reply(types.StatusSuccess)
	h.Flags2 |= types.SMB1Flags2ExtendedSec

	w := smbenc.NewWriter(types.SMB1HeaderSize + 37 + 16 + len(r.SecurityBlob))
	h.encode(w)
	w.WriteUint8(17)
	w.WriteUint16(r.DialectIndex)
	w.WriteUint8(r.SecurityMode)
	w.WriteUint16(r.MaxMpxCount)
	w.WriteUint16(r.MaxNumberVcs)
	w.WriteUint32(r.MaxBufferSize)
	w.WriteUint32(r.MaxRawSize)
	w.WriteUint32(r.SessionKey)
	w.WriteUint32(r.Capabilities)
	w.WriteUint64(types.TimeToFiletime(r.SystemTime))
	w.WriteUint16(uint16(r.ServerTimeZone))
	w.WriteUint8(0) // ChallengeLength
	w.WriteUint16(uint16(16 + len(r.SecurityBlob)))
	w.WriteGUID(r.ServerGUID)
	w.WriteBytes(r.SecurityBlob)
	return w.Bytes()
}

// ParseNegotiateResponse decodes either response shape. A negative response
// yields DialectIndex 0xFFFF and zero values elsewhere.
func ParseNegotiateResponse(data []byte) (*Header, *NegotiateResponse, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	if h.Command != types.SMB1CommandNegotiate {
		return nil, nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedCommand, h.Command)
	}

	r := smbenc.NewReader(data[types.SMB1HeaderSize:])
	words := r.ReadUint8()
	resp := &NegotiateResponse{DialectIndex: r.ReadUint16()}
	if words == 1 {
		return h, resp, r.Err()
	}
	if words != 17 {
		return nil, nil, fmt.Errorf("negotiate response: word count %d", words)
	}
	resp.SecurityMode = r.ReadUint8()
	resp.MaxMpxCount = r.ReadUint16()
	resp.MaxNumberVcs = r.ReadUint16()
	resp.MaxBufferSize = r.ReadUint32()
	resp.MaxRawSize = r.ReadUint32()
	resp.SessionKey = r.ReadUint32()
	resp.Capabilities = r.ReadUint32()
	resp.SystemTime = types.FiletimeToTime(r.ReadUint64())
	resp.ServerTimeZone = int16(r.ReadUint16())
	r.Skip(1)
	n := int(r.ReadUint16())
	resp.ServerGUID = r.ReadGUID()
	if n > 16 {
		resp.SecurityBlob = r.ReadBytes(n - 16)
	}
	if err := r.Err(); err != nil {
		return nil, nil, fmt.Errorf("negotiate response: %w", err)
	}
	return h, resp, nil
}
