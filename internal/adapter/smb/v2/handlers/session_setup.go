package handlers

import (
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// SESSION_SETUP request layout [MS-SMB2] 2.2.5
const (
	sessionSetupStructureSize = 25
	sessionSetupFixedSize     = 24

	sessionSetupRespStructureSize = 9
	sessionSetupRespFixedSize     = 8
)

// SessionSetupRequest is a decoded SESSION_SETUP request.
type SessionSetupRequest struct {
	Flags             uint8
	SecurityMode      types.SecurityMode
	Capabilities      uint32
	Channel           uint32
	SecurityBuffer    []byte
	PreviousSessionID uint64
}

// DecodeSessionSetupRequest parses the body following the SMB2 header.
func DecodeSessionSetupRequest(body []byte) (*SessionSetupRequest, error) {
	r := smbenc.NewReader(body)
	r.ExpectUint16(sessionSetupStructureSize)
	req := &SessionSetupRequest{
		Flags:        r.ReadUint8(),
		SecurityMode: types.SecurityMode(r.ReadUint8()),
		Capabilities: r.ReadUint32(),
		Channel:      r.ReadUint32(),
	}
	secOffset := int(r.ReadUint16())
	secLength := int(r.ReadUint16())
	req.PreviousSessionID = r.ReadUint64()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("SESSION_SETUP decode: %w", err)
	}

	// The offset is relative to the header start.
	if secLength > 0 {
		start := max(secOffset-header.HeaderSize, sessionSetupFixedSize)
		buf, err := smbenc.Slice(body, start, secLength)
		if err != nil {
			return nil, fmt.Errorf("SESSION_SETUP security buffer: %w", err)
		}
		req.SecurityBuffer = buf
	}
	return req, nil
}

// EncodeSessionSetupRequest is the client form, used by the probe.
func EncodeSessionSetupRequest(mode types.SecurityMode, token []byte) []byte {
	w := smbenc.NewWriter(sessionSetupFixedSize + len(token))
	w.WriteUint16(sessionSetupStructureSize)
	w.WriteUint8(0)
	w.WriteUint8(uint8(mode))
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteUint16(uint16(header.HeaderSize + sessionSetupFixedSize))
	w.WriteUint16(uint16(len(token)))
	w.WriteUint64(0)
	w.WriteBytes(token)
	return w.Bytes()
}

// SessionSetupResponse is a decoded SESSION_SETUP response body.
type SessionSetupResponse struct {
	SessionFlags   uint16
	SecurityBuffer []byte
}

func encodeSessionSetupResponse(flags uint16, token []byte) []byte {
	w := smbenc.NewWriter(sessionSetupRespFixedSize + len(token))
	w.WriteUint16(sessionSetupRespStructureSize)
	w.WriteUint16(flags)
	w.WriteUint16(uint16(header.HeaderSize + sessionSetupRespFixedSize))
	w.WriteUint16(uint16(len(token)))
	w.WriteBytes(token)
	if len(token) == 0 {
		w.WriteUint8(0)
	}
	return w.Bytes()
}

// DecodeSessionSetupResponse parses a response body, header excluded.
func DecodeSessionSetupResponse(body []byte) (*SessionSetupResponse, error) {
	r := smbenc.NewReader(body)
	r.ExpectUint16(sessionSetupRespStructureSize)
	resp := &SessionSetupResponse{SessionFlags: r.ReadUint16()}
	off := int(r.ReadUint16())
	n := int(r.ReadUint16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("SESSION_SETUP response decode: %w", err)
	}
	if n > 0 {
		buf, err := smbenc.Slice(body, off-header.HeaderSize, n)
		if err != nil {
			return nil, fmt.Errorf("SESSION_SETUP response security buffer: %w", err)
		}
		resp.SecurityBuffer = append([]byte(nil), buf...)
	}
	return resp, nil
}

// SessionSetup runs one leg of the security exchange [MS-SMB2] 3.3.5.5.
//
// While the mechanism wants more round trips the response carries
// STATUS_MORE_PROCESSING_REQUIRED and a provisional session ID. On
// completion the session is stored, the mechanism's session key (if any)
// is installed in the connection's security context and the connection
// becomes established. The success response is therefore the first message
// signed on the connection.
func (h *Handler) SessionSetup(ctx *SMBHandlerContext, body []byte) (*HandlerResult, error) {
	if ctx.Conn.State() == session.StateEstablished {
		logger.Debug("SESSION_SETUP on established connection", logger.SessionID(ctx.SessionID))
		return NewErrorResult(types.StatusRequestNotAccepted), nil
	}
	if h.Authenticator == nil {
		return NewErrorResult(types.StatusLogonFailure), nil
	}

	req, err := DecodeSessionSetupRequest(body)
	if err != nil {
		logger.Debug("SESSION_SETUP parse error", logger.Err(err))
		return NewErrorResult(types.StatusInvalidParameter), nil
	}

	if ctx.SessionID != 0 {
		if _, ok := h.GetPendingAuth(ctx.SessionID); !ok {
			logger.Debug("SESSION_SETUP for unknown session", logger.SessionID(ctx.SessionID))
			return NewErrorResult(types.StatusUserSessionDeleted), nil
		}
	}

	res, err := h.Authenticator.Accept(ctx.Context, req.SecurityBuffer)
	if err != nil {
		logger.Info("SESSION_SETUP authentication failed",
			logger.ClientAddr(ctx.ClientAddr), logger.Err(err))
		if ctx.SessionID != 0 {
			h.DeletePendingAuth(ctx.SessionID)
		}
		return NewErrorResult(types.StatusLogonFailure), nil
	}

	if !res.Done {
		if ctx.SessionID == 0 {
			ctx.SessionID = h.SessionManager.GenerateID()
			h.StorePendingAuth(&PendingAuth{
				SessionID:  ctx.SessionID,
				ClientAddr: ctx.ClientAddr,
				CreatedAt:  time.Now(),
			})
		}
		return NewResult(types.StatusMoreProcessingRequired, encodeSessionSetupResponse(0, res.Token)), nil
	}

	return h.completeSessionSetup(ctx, res)
}

func (h *Handler) completeSessionSetup(ctx *SMBHandlerContext, res *auth.Result) (*HandlerResult, error) {
	if ctx.SessionID == 0 {
		ctx.SessionID = h.SessionManager.GenerateID()
	}
	h.DeletePendingAuth(ctx.SessionID)

	sec := ctx.Conn.Security()
	if len(res.SessionKey) == 0 && sec.SigningRequired() {
		// No key means no signatures, and this connection must sign.
		logger.Info("SMB session setup refused: signing required without a session key",
			logger.ClientAddr(ctx.ClientAddr),
			logger.Username(res.Identity.Username),
			logger.Mechanism(res.Identity.Mechanism))
		return NewErrorResult(types.StatusAccessDenied), nil
	}
	if len(res.SessionKey) > 0 {
		if err := sec.InstallKey(res.SessionKey); err != nil {
			return nil, fmt.Errorf("install session key: %w", err)
		}
	}

	sess := &session.Session{
		ID:         ctx.SessionID,
		ClientAddr: ctx.ClientAddr,
		Username:   res.Identity.Username,
		Domain:     res.Identity.Domain,
		Guest:      res.Identity.Guest,
		Mechanism:  res.Identity.Mechanism,
		Security:   sec,
	}
	if p := ctx.Conn.SessionPreauth(); p != nil {
		v := p.Value()
		sess.PreauthHash = v[:]
	}
	h.SessionManager.Store(sess)

	if err := ctx.Conn.Transition(session.StateEstablished); err != nil {
		h.SessionManager.Delete(sess.ID)
		return nil, err
	}

	var flags uint16
	if sess.Guest {
		flags |= types.SessionFlagIsGuest
	}

	logger.Info("SMB session established",
		logger.SessionID(sess.ID),
		logger.ClientAddr(ctx.ClientAddr),
		logger.Username(sess.Username),
		logger.Domain(sess.Domain),
		logger.Mechanism(sess.Mechanism),
		logger.Signed(sec.ShouldSign()))

	return NewResult(types.StatusSuccess, encodeSessionSetupResponse(flags, res.Token)), nil
}
