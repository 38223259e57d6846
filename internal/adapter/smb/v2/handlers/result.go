package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// HandlerResult is what a command handler hands back to the dispatch layer.
type HandlerResult struct {
	// Data is the response body, excluding the 64-byte header. Nil for
	// errors, in which case the dispatcher supplies an ERROR body.
	Data []byte

	// Status is the NT_STATUS placed in the response header.
	Status types.Status

	// AfterSend runs once the response has been signed and written. LOGOFF
	// uses it to tear down the session after its reply is signed with the
	// old key.
	AfterSend func()

	// DropConnection closes the connection after the response.
	DropConnection bool
}

// NewResult creates a result with the given status and body.
func NewResult(status types.Status, data []byte) *HandlerResult {
	return &HandlerResult{Status: status, Data: data}
}

// NewErrorResult creates an error result; the body is filled in later.
func NewErrorResult(status types.Status) *HandlerResult {
	return &HandlerResult{Status: status}
}

// MakeErrorBody is the SMB2 ERROR response body [MS-SMB2] 2.2.2:
// StructureSize 9, ErrorContextCount, Reserved, ByteCount, one data byte.
func MakeErrorBody() []byte {
	w := smbenc.NewWriter(9)
	w.WriteUint16(9)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint32(0)
	w.WriteUint8(0)
	return w.Bytes()
}
