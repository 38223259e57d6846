package smb

import (
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/signing"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// LockedWriter serializes writes to a connection.
type LockedWriter struct {
	sync.Mutex
}

// ConnInfo is what the frame processing functions need from a connection.
// The connection type in pkg/adapter/smb builds one per accepted socket.
type ConnInfo struct {
	Conn net.Conn

	// Handler serves post-negotiate commands; shared by all connections.
	Handler *handlers.Handler

	// State is this connection's negotiation and security state.
	State *ConnectionState

	WriteMu      *LockedWriter
	WriteTimeout time.Duration

	Signer signing.Engine

	// SessionTracker lets dispatch record sessions on the owning
	// connection so they are cleaned up when it closes. May be nil.
	SessionTracker SessionTracker

	// Metrics may be nil.
	Metrics metrics.SMBMetrics
}

// ClientAddr is the remote address as a string, "" without a connection.
func (ci *ConnInfo) ClientAddr() string {
	if ci.Conn == nil || ci.Conn.RemoteAddr() == nil {
		return ""
	}
	return ci.Conn.RemoteAddr().String()
}

// SessionTracker receives session lifecycle events for one connection.
type SessionTracker interface {
	TrackSession(sessionID uint64)
	UntrackSession(sessionID uint64)
}
