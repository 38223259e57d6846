package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// Logoff ends the session [MS-SMB2] 3.3.5.6. The reply is still signed with
// the session key; teardown runs after it has been sent.
func (h *Handler) Logoff(ctx *SMBHandlerContext, body []byte) (*HandlerResult, error) {
	r := smbenc.NewReader(body)
	r.ExpectUint16(4)
	if r.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter), nil
	}

	sess, ok := h.GetSession(ctx.SessionID)
	if !ok {
		return NewErrorResult(types.StatusUserSessionDeleted), nil
	}

	res := NewResult(types.StatusSuccess, encodeFourByteBody())
	res.AfterSend = func() {
		h.SessionManager.Delete(sess.ID)
		ctx.Conn.ResetSecurity()
		if err := ctx.Conn.Transition(session.StateAwaitingSessionSetup); err != nil {
			logger.Warn("LOGOFF state transition failed", logger.SessionID(sess.ID), logger.Err(err))
		}
		logger.Info("SMB session logged off", logger.SessionID(sess.ID), logger.Username(sess.Username))
	}
	return res, nil
}

// encodeFourByteBody is the LOGOFF and ECHO body: StructureSize 4 plus
// Reserved.
func encodeFourByteBody() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes()
}
