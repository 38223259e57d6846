package handlers

import (
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
)

// Handler serves the post-negotiate SMB2 commands. One Handler is shared by
// every connection of an adapter.
type Handler struct {
	StartTime time.Time

	// SessionManager owns established sessions and credit policy.
	SessionManager *session.Manager

	// Authenticator runs the SESSION_SETUP security exchange.
	Authenticator auth.Authenticator

	// Pending auth sessions (mid-handshake)
	pendingAuth sync.Map // sessionID -> *PendingAuth
}

// PendingAuth tracks a session ID handed out in a
// STATUS_MORE_PROCESSING_REQUIRED response.
type PendingAuth struct {
	SessionID  uint64
	ClientAddr string
	CreatedAt  time.Time
}

// NewHandler creates a handler around a session manager and authenticator.
func NewHandler(sessions *session.Manager, authenticator auth.Authenticator) *Handler {
	if sessions == nil {
		sessions = session.NewDefaultManager()
	}
	return &Handler{
		StartTime:      time.Now(),
		SessionManager: sessions,
		Authenticator:  authenticator,
	}
}

// GetSession returns an established session.
func (h *Handler) GetSession(sessionID uint64) (*session.Session, bool) {
	return h.SessionManager.Get(sessionID)
}

// StorePendingAuth records a mid-handshake session.
func (h *Handler) StorePendingAuth(pending *PendingAuth) {
	h.pendingAuth.Store(pending.SessionID, pending)
}

// GetPendingAuth returns a mid-handshake session.
func (h *Handler) GetPendingAuth(sessionID uint64) (*PendingAuth, bool) {
	v, ok := h.pendingAuth.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*PendingAuth), true
}

// DeletePendingAuth forgets a mid-handshake session.
func (h *Handler) DeletePendingAuth(sessionID uint64) {
	h.pendingAuth.Delete(sessionID)
}

// CleanupSession drops both pending and established state for sessionID.
// Called when a connection closes.
func (h *Handler) CleanupSession(sessionID uint64) {
	h.DeletePendingAuth(sessionID)
	h.SessionManager.Delete(sessionID)
}
