package handlers

import (
	"net/http"
	"sort"
)

// SessionsHandler lists established sessions.
type SessionsHandler struct {
	status StatusProvider
}

func NewSessionsHandler(status StatusProvider) *SessionsHandler {
	return &SessionsHandler{status: status}
}

// List handles GET /sessions. Sessions are ordered by ID; with none the
// data field is an empty array, never null or missing.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := []SessionInfo{}
	if h.status != nil {
		sessions = append(sessions, h.status.Sessions()...)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	writeJSON(w, http.StatusOK, okResponse(sessions))
}
