package handlers

import (
	"net/http"
	"time"
)

// StatusProvider is the view of a running SMB server the HTTP handlers
// need. A nil provider reports not ready.
type StatusProvider interface {
	// Ready reports whether the SMB listener is bound.
	Ready() bool
	ActiveConnections() int32
	Sessions() []SessionInfo
}

// SessionInfo describes one established session.
type SessionInfo struct {
	ID         uint64    `json:"id"`
	ClientAddr string    `json:"client_addr"`
	Username   string    `json:"username,omitempty"`
	Domain     string    `json:"domain,omitempty"`
	Guest      bool      `json:"guest"`
	Mechanism  string    `json:"mechanism,omitempty"`
	Dialect    string    `json:"dialect"`
	Signed     bool      `json:"signed"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	status StatusProvider
}

func NewHealthHandler(status StatusProvider) *HealthHandler {
	return &HealthHandler{status: status}
}

// Liveness handles GET /health. It succeeds whenever the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittosmb",
	}))
}

// Readiness handles GET /health/ready and answers 503 until the SMB
// listener is accepting connections.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.status == nil || !h.status.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("smb listener not ready"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"connections": h.status.ActiveConnections(),
		"sessions":    len(h.status.Sessions()),
	}))
}
