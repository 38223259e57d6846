package smb

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	smb "github.com/marmos91/dittosmb/internal/adapter/smb"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/logger"
)

// Connection serves one client. Frames are processed strictly in arrival
// order: negotiation, session setup and the SMB1 signing counter all
// depend on it.
type Connection struct {
	server *Adapter
	conn   net.Conn
	state  *smb.ConnectionState

	writeMu smb.LockedWriter

	sessionsMu sync.Mutex
	sessions   map[uint64]struct{}
}

var _ smb.SessionTracker = (*Connection)(nil)

// NewConnection creates the handler for an accepted socket.
func NewConnection(server *Adapter, conn net.Conn) *Connection {
	return &Connection{
		server:   server,
		conn:     conn,
		state:    smb.NewConnectionState(server.identity, server.tokens, server.config.Signing.Policy()),
		sessions: make(map[uint64]struct{}),
	}
}

// TrackSession records a session established on this connection.
func (c *Connection) TrackSession(sessionID uint64) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	c.sessions[sessionID] = struct{}{}
}

// UntrackSession forgets a session after LOGOFF.
func (c *Connection) UntrackSession(sessionID uint64) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *Connection) connInfo() *smb.ConnInfo {
	ci := &smb.ConnInfo{
		Conn:           c.conn,
		Handler:        c.server.handler,
		State:          c.state,
		WriteMu:        &c.writeMu,
		WriteTimeout:   c.server.config.Timeouts.Write,
		SessionTracker: c,
	}
	if c.server.metrics != nil {
		ci.Metrics = c.server.metrics
	}
	return ci
}

// Serve reads and processes frames until the client disconnects, a
// protocol error closes the connection, or ctx is cancelled.
func (c *Connection) Serve(ctx context.Context) {
	defer c.handleConnectionClose()

	clientAddr := c.conn.RemoteAddr().String()
	ctx = logger.WithContext(ctx, logger.NewLogContext(uuid.NewString(), clientAddr))
	ci := c.connInfo()
	cfg := c.server.config

	for {
		select {
		case <-ctx.Done():
			logger.DebugCtx(ctx, "SMB connection closed by shutdown")
			return
		default:
		}

		c.resetIdleDeadline()

		frame, err := smb.ReadFrame(ctx, c.conn, cfg.MaxMessageSize.Int(), cfg.Timeouts.Read)
		if err != nil {
			c.logReadError(ctx, err)
			return
		}

		if err := smb.ProcessFrame(ctx, ci, frame); err != nil {
			c.logProcessError(ctx, err)
			return
		}
	}
}

func (c *Connection) resetIdleDeadline() {
	idle := c.server.config.Timeouts.Idle
	if idle <= 0 {
		return
	}
	if err := c.conn.SetDeadline(time.Now().Add(idle)); err != nil {
		logger.Debug("Failed to set idle deadline", logger.ClientAddr(c.conn.RemoteAddr().String()), logger.Err(err))
	}
}

func (c *Connection) logReadError(ctx context.Context, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.DebugCtx(ctx, "SMB connection closed by client")
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.DebugCtx(ctx, "SMB connection timed out", logger.Err(err))
	case errors.Is(err, context.Canceled):
		logger.DebugCtx(ctx, "SMB connection cancelled")
	default:
		logger.InfoCtx(ctx, "Dropping SMB connection: bad frame", logger.Err(err))
	}
}

func (c *Connection) logProcessError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, negotiate.ErrNoMutualDialect), errors.Is(err, smb.ErrDropConnection):
		logger.DebugCtx(ctx, "SMB connection closed after final response", logger.Err(err))
	case errors.Is(err, smb.ErrSignatureRejected):
		logger.WarnCtx(ctx, "SMB connection closed after signature failure", logger.Err(err))
	default:
		logger.InfoCtx(ctx, "SMB connection closed on protocol error", logger.Err(err))
	}
}

// handleConnectionClose recovers panics, removes this connection's
// sessions and wipes its key material.
func (c *Connection) handleConnectionClose() {
	clientAddr := c.conn.RemoteAddr().String()
	if r := recover(); r != nil {
		logger.Error("Panic in SMB connection handler",
			logger.ClientAddr(clientAddr),
			"error", r,
			"stack", string(debug.Stack()))
	}

	c.cleanupSessions()
	c.state.Close()
	_ = c.conn.Close()
}

func (c *Connection) cleanupSessions() {
	c.sessionsMu.Lock()
	ids := make([]uint64, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.sessions = make(map[uint64]struct{})
	c.sessionsMu.Unlock()

	for _, id := range ids {
		c.server.handler.CleanupSession(id)
	}
	if len(ids) > 0 {
		logger.Debug("Cleaned up sessions on connection close",
			logger.ClientAddr(c.conn.RemoteAddr().String()),
			"count", len(ids))
		if c.server.metrics != nil {
			c.server.metrics.SetActiveSessions(c.server.handler.SessionManager.Count())
		}
	}
}
