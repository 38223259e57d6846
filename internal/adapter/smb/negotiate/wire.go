package negotiate

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

const (
	requestStructureSize  = 36
	responseStructureSize = 65
	responseFixedSize     = 64
	errorStructureSize    = 9

	// Security buffer sits right after the fixed response body.
	securityBufferOffset = header.HeaderSize + responseFixedSize
)

// SMB2Request is a decoded SMB2 NEGOTIATE request.
type SMB2Request struct {
	Header       *header.SMB2Header
	SecurityMode types.SecurityMode
	Capabilities uint32
	ClientGUID   uuid.UUID
	Dialects     []dialect.Version
	Contexts     []types.NegotiateContext
}

// ParseSMB2Request decodes a full NEGOTIATE message, header included.
func ParseSMB2Request(msg []byte) (*SMB2Request, error) {
	h, err := header.Parse(msg)
	if err != nil {
		return nil, err
	}
	if h.Command != types.CommandNegotiate {
		return nil, fmt.Errorf("expected NEGOTIATE, got %s", h.Command)
	}

	r := smbenc.NewReader(msg[header.HeaderSize:])
	r.ExpectUint16(requestStructureSize)
	count := int(r.ReadUint16())
	req := &SMB2Request{
		Header:       h,
		SecurityMode: types.SecurityMode(r.ReadUint16()),
	}
	r.Skip(2)
	req.Capabilities = r.ReadUint32()
	req.ClientGUID = r.ReadGUID()
	ctxOffset := int(r.ReadUint32())
	ctxCount := int(r.ReadUint16())
	r.Skip(2)
	for i := 0; i < count && r.Err() == nil; i++ {
		req.Dialects = append(req.Dialects, dialect.Version(r.ReadUint16()))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("negotiate request: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("negotiate request: empty dialect list")
	}

	// The offset/count pair is only meaningful when 3.1.1 is offered;
	// older clients put ClientStartTime there.
	if ctxCount > 0 && slices.Contains(req.Dialects, dialect.SMB311) {
		if ctxOffset < header.HeaderSize || ctxOffset > len(msg) {
			return nil, fmt.Errorf("negotiate request: context offset %d out of range", ctxOffset)
		}
		if req.Contexts, err = types.ParseNegotiateContextList(msg[ctxOffset:], ctxCount); err != nil {
			return nil, fmt.Errorf("negotiate request: %w", err)
		}
	}
	return req, nil
}

// BuildSMB2Request is the client form of NEGOTIATE. Contexts are only
// written when SMB311 is among dialects.
func BuildSMB2Request(dialects []dialect.Version, clientGUID uuid.UUID, mode types.SecurityMode, contexts []types.NegotiateContext) []byte {
	hdr := &header.SMB2Header{Command: types.CommandNegotiate, Credits: 1}
	w := smbenc.NewWriter(256)
	w.WriteBytes(hdr.Bytes())
	w.WriteUint16(requestStructureSize)
	w.WriteUint16(uint16(len(dialects)))
	w.WriteUint16(uint16(mode))
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteGUID(clientGUID)
	ctxField := w.Len()
	w.WriteUint32(0)
	w.WriteUint16(0)
	w.WriteUint16(0)
	for _, d := range dialects {
		w.WriteUint16(uint16(d))
	}
	if len(contexts) > 0 && slices.Contains(dialects, dialect.SMB311) {
		w.Pad(8)
		w.PutUint32At(ctxField, uint32(w.Len()))
		w.PutUint16At(ctxField+4, uint16(len(contexts)))
		w.WriteBytes(types.EncodeNegotiateContextList(contexts))
	}
	return w.Bytes()
}

// SMB2Response is a decoded NEGOTIATE response.
type SMB2Response struct {
	Header          *header.SMB2Header
	SecurityMode    types.SecurityMode
	DialectRevision dialect.Version
	ServerGUID      uuid.UUID
	Capabilities    uint32
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      time.Time
	ServerStartTime time.Time
	SecurityBuffer  []byte
	Contexts        []types.NegotiateContext
}

type smb2ResponseFields struct {
	mode       types.SecurityMode
	revision   dialect.Version
	guid       uuid.UUID
	caps       uint32
	maxTrans   uint32
	maxRead    uint32
	maxWrite   uint32
	systemTime time.Time
	secBuf     []byte
	contexts   []types.NegotiateContext
}

func encodeSMB2Response(hdr *header.SMB2Header, f smb2ResponseFields) []byte {
	w := smbenc.NewWriter(securityBufferOffset + len(f.secBuf) + 128)
	w.WriteBytes(hdr.Bytes())
	w.WriteUint16(responseStructureSize)
	w.WriteUint16(uint16(f.mode))
	w.WriteUint16(uint16(f.revision))
	w.WriteUint16(uint16(len(f.contexts)))
	w.WriteGUID(f.guid)
	w.WriteUint32(f.caps)
	w.WriteUint32(f.maxTrans)
	w.WriteUint32(f.maxRead)
	w.WriteUint32(f.maxWrite)
	w.WriteUint64(types.TimeToFiletime(f.systemTime))
	w.WriteUint64(0) // ServerStartTime
	w.WriteUint16(securityBufferOffset)
	w.WriteUint16(uint16(len(f.secBuf)))
	ctxField := w.Len()
	w.WriteUint32(0)
	w.WriteBytes(f.secBuf)
	if len(f.contexts) > 0 {
		w.Pad(8)
		w.PutUint32At(ctxField, uint32(w.Len()))
		w.WriteBytes(types.EncodeNegotiateContextList(f.contexts))
	}
	return w.Bytes()
}

// encodeSMB2Error is the generic SMB2 ERROR response body.
func encodeSMB2Error(hdr *header.SMB2Header) []byte {
	w := smbenc.NewWriter(header.HeaderSize + errorStructureSize)
	w.WriteBytes(hdr.Bytes())
	w.WriteUint16(errorStructureSize)
	w.WriteUint8(0) // ErrorContextCount
	w.WriteUint8(0)
	w.WriteUint32(0) // ByteCount
	w.WriteUint8(0)
	return w.Bytes()
}

// ErrorResponse builds an SMB2 ERROR response to req with status.
func ErrorResponse(req *header.SMB2Header, status types.Status, credits uint16) []byte {
	return encodeSMB2Error(header.NewResponse(req, status, credits))
}

// ParseSMB2Response decodes a NEGOTIATE response. Error responses return the
// header with a nil body error so callers can inspect the status.
func ParseSMB2Response(msg []byte) (*SMB2Response, error) {
	h, err := header.Parse(msg)
	if err != nil {
		return nil, err
	}
	resp := &SMB2Response{Header: h}
	if h.Status != types.StatusSuccess {
		return resp, nil
	}

	r := smbenc.NewReader(msg[header.HeaderSize:])
	r.ExpectUint16(responseStructureSize)
	resp.SecurityMode = types.SecurityMode(r.ReadUint16())
	resp.DialectRevision = dialect.Version(r.ReadUint16())
	ctxCount := int(r.ReadUint16())
	resp.ServerGUID = r.ReadGUID()
	resp.Capabilities = r.ReadUint32()
	resp.MaxTransactSize = r.ReadUint32()
	resp.MaxReadSize = r.ReadUint32()
	resp.MaxWriteSize = r.ReadUint32()
	resp.SystemTime = types.FiletimeToTime(r.ReadUint64())
	resp.ServerStartTime = types.FiletimeToTime(r.ReadUint64())
	secOff := int(r.ReadUint16())
	secLen := int(r.ReadUint16())
	ctxOff := int(r.ReadUint32())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("negotiate response: %w", err)
	}

	if secLen > 0 {
		buf, err := smbenc.Slice(msg, secOff, secLen)
		if err != nil {
			return nil, fmt.Errorf("negotiate response security buffer: %w", err)
		}
		resp.SecurityBuffer = append([]byte(nil), buf...)
	}
	if ctxCount > 0 {
		if ctxOff > len(msg) {
			return nil, fmt.Errorf("negotiate response: context offset %d out of range", ctxOff)
		}
		if resp.Contexts, err = types.ParseNegotiateContextList(msg[ctxOff:], ctxCount); err != nil {
			return nil, fmt.Errorf("negotiate response: %w", err)
		}
	}
	return resp, nil
}
