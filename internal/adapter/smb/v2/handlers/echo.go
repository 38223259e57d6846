package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// Echo answers the keep-alive ECHO request [MS-SMB2] 2.2.28. It touches no
// state.
func (h *Handler) Echo(_ *SMBHandlerContext, body []byte) (*HandlerResult, error) {
	r := smbenc.NewReader(body)
	r.ExpectUint16(4)
	if r.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter), nil
	}
	return NewResult(types.StatusSuccess, encodeFourByteBody()), nil
}

// EncodeEchoRequest is the client form.
func EncodeEchoRequest() []byte {
	return encodeFourByteBody()
}

// EncodeLogoffRequest is the client form.
func EncodeLogoffRequest() []byte {
	return encodeFourByteBody()
}
