// Package handlers implements the SMB2 commands served once a dialect has
// been negotiated: SESSION_SETUP, LOGOFF and ECHO.
package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
)

// ConnectionState is the per-connection state handlers may read or
// advance. It is implemented by the connection layer.
type ConnectionState interface {
	// State is the current negotiation/authentication phase.
	State() session.ConnState

	// Transition moves the phase forward.
	Transition(to session.ConnState) error

	// Security returns the live security context. Never nil after
	// negotiation.
	Security() *session.SecurityContext

	// ResetSecurity replaces the security context with a fresh keyless one
	// bound to the same dialect. Used after LOGOFF.
	ResetSecurity()

	// SessionPreauth returns the 3.1.1 preauth hash chain of the session
	// being set up, or nil.
	SessionPreauth() *session.PreauthIntegrity
}

// SMBHandlerContext carries per-request state through the handlers.
type SMBHandlerContext struct {
	Context    context.Context
	ClientAddr string

	// SessionID from the request. SESSION_SETUP sets it when it allocates
	// a new session so the response header carries it.
	SessionID uint64
	MessageID uint64

	Conn ConnectionState
}

// NewSMBHandlerContext creates a handler context for one request.
func NewSMBHandlerContext(ctx context.Context, clientAddr string, sessionID, messageID uint64, conn ConnectionState) *SMBHandlerContext {
	return &SMBHandlerContext{
		Context:    ctx,
		ClientAddr: clientAddr,
		SessionID:  sessionID,
		MessageID:  messageID,
		Conn:       conn,
	}
}
