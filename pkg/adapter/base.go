package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
)

// shutdownReadDeadline is how far in the future blocked reads are woken
// when shutdown starts. A connection mid-frame gets this long to finish.
const shutdownReadDeadline = 100 * time.Millisecond

// ConnectionHandler serves one accepted connection until it closes or ctx
// is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory builds the protocol connection for an accepted socket.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig holds the listener settings shared by TCP adapters.
type BaseConfig struct {
	// BindAddress is the IP to bind. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port. 0 lets the OS choose (tests).
	Port int

	// MaxConnections caps concurrent clients. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds the drain of active connections.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables a periodic connection count log line.
	MetricsLogInterval time.Duration
}

func (c BaseConfig) listenAddr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// MetricsRecorder receives connection lifecycle events. metrics.SMBMetrics
// satisfies it.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// OnConnectionClose runs when a connection goroutine exits, before the
// connection is released from the table.
type OnConnectionClose func(addr string)

// ErrForcedClose is returned by the serve loop when the drain timed out and
// remaining clients were disconnected.
var ErrForcedClose = errors.New("connections force-closed on shutdown")

// BaseAdapter owns the listener of a TCP protocol server: admission under
// the connection cap, the table of live clients and the two-phase shutdown
// (stop accepting and wake readers, then drain or force-close).
//
// All exported methods are safe for concurrent use.
type BaseAdapter struct {
	Config BaseConfig

	// Metrics may be nil.
	Metrics MetricsRecorder

	// Shutdown is closed when shutdown starts.
	Shutdown chan struct{}

	// ListenerReady is closed once the listener is bound, or once the bind
	// has failed.
	ListenerReady chan struct{}

	protocol string
	log      *connLog

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
	readyOne sync.Once

	slots chan struct{}
	conns connTable

	// connCtx is handed to every connection and cancelled on shutdown.
	connCtx    context.Context
	cancelConn context.CancelFunc
}

// NewBaseAdapter creates a stopped adapter named protocol. Call
// ServeWithFactory to start it.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	connCtx, cancel := context.WithCancel(context.Background())
	b := &BaseAdapter{
		Config:        config,
		Shutdown:      make(chan struct{}),
		ListenerReady: make(chan struct{}),
		protocol:      protocol,
		log:           &connLog{protocol: logger.Protocol(protocol)},
		connCtx:       connCtx,
		cancelConn:    cancel,
	}
	b.conns.init()
	if config.MaxConnections > 0 {
		b.slots = make(chan struct{}, config.MaxConnections)
	}
	b.log.debug("Connection limit", "max_connections", config.MaxConnections)
	return b
}

// ServeWithFactory binds the listener and accepts clients until ctx is
// cancelled or Stop is called. preAccept may veto a socket before a
// connection is built for it; onClose runs as each client goes away. Both
// are optional.
//
// The return is nil after a clean drain, ErrForcedClose when clients had to
// be disconnected, or the bind error.
func (b *BaseAdapter) ServeWithFactory(
	ctx context.Context,
	factory ConnectionFactory,
	preAccept func(net.Conn) bool,
	onClose OnConnectionClose,
) error {
	ln, err := net.Listen("tcp", b.Config.listenAddr())
	if err != nil {
		b.readyOne.Do(func() { close(b.ListenerReady) })
		return fmt.Errorf("%s listen on %s: %w", b.protocol, b.Config.listenAddr(), err)
	}
	b.mu.Lock()
	b.listener = ln
	b.mu.Unlock()
	b.readyOne.Do(func() { close(b.ListenerReady) })
	b.log.info("Server listening", "address", ln.Addr().String())

	go b.watch(ctx)
	if b.Config.MetricsLogInterval > 0 {
		go b.reportLoop(ctx)
	}

	for {
		if !b.acquireSlot() {
			return b.drain(b.Config.ShutdownTimeout)
		}
		nc, err := ln.Accept()
		if err != nil {
			b.releaseSlot()
			if b.stopping() {
				return b.drain(b.Config.ShutdownTimeout)
			}
			b.log.debug("Accept failed", logger.Err(err))
			continue
		}
		if !b.admit(nc, preAccept) {
			b.releaseSlot()
			continue
		}
		active := b.conns.add(nc.RemoteAddr().String(), nc)
		go b.run(factory.NewConnection(nc), nc, active, onClose)
	}
}

// admit tunes an accepted socket and applies the optional veto.
func (b *BaseAdapter) admit(nc net.Conn, preAccept func(net.Conn) bool) bool {
	if tcp, ok := nc.(*net.TCPConn); ok {
		// SMB exchanges are small request/response pairs.
		if err := tcp.SetNoDelay(true); err != nil {
			b.log.debug("TCP_NODELAY failed", logger.Err(err))
		}
	}
	if preAccept != nil && !preAccept(nc) {
		b.log.debug("Connection rejected", logger.ClientAddr(nc.RemoteAddr().String()))
		_ = nc.Close()
		return false
	}
	return true
}

// run serves one client and releases its accounting when it returns.
func (b *BaseAdapter) run(h ConnectionHandler, nc net.Conn, active int32, onClose OnConnectionClose) {
	addr := nc.RemoteAddr().String()
	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(active)
	}
	b.log.debug("Client connected", logger.ClientAddr(addr), "active", active)

	defer func() {
		if onClose != nil {
			onClose(addr)
		}
		active := b.conns.remove(addr)
		b.releaseSlot()
		if b.Metrics != nil {
			b.Metrics.RecordConnectionClosed()
			b.Metrics.SetActiveConnections(active)
		}
		b.log.debug("Client disconnected", logger.ClientAddr(addr), "active", active)
	}()

	h.Serve(b.connCtx)
}

// acquireSlot blocks for room under MaxConnections. It reports false when
// shutdown started first.
func (b *BaseAdapter) acquireSlot() bool {
	if b.slots == nil {
		return !b.stopping()
	}
	select {
	case b.slots <- struct{}{}:
		return true
	case <-b.Shutdown:
		return false
	}
}

func (b *BaseAdapter) releaseSlot() {
	if b.slots != nil {
		<-b.slots
	}
}

func (b *BaseAdapter) stopping() bool {
	select {
	case <-b.Shutdown:
		return true
	default:
		return false
	}
}

func (b *BaseAdapter) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		b.log.info("Shutdown requested", logger.Err(ctx.Err()))
		b.beginShutdown()
	case <-b.Shutdown:
	}
}

// beginShutdown is the first phase: no new clients, blocked readers woken,
// connection context cancelled. Repeated calls are no-ops.
func (b *BaseAdapter) beginShutdown() {
	b.stopOnce.Do(func() {
		close(b.Shutdown)

		b.mu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				b.log.debug("Listener close failed", logger.Err(err))
			}
		}
		b.mu.Unlock()

		wake := time.Now().Add(shutdownReadDeadline)
		b.conns.each(func(addr string, nc net.Conn) {
			if err := nc.SetReadDeadline(wake); err != nil {
				b.log.debug("Read deadline failed", logger.ClientAddr(addr), logger.Err(err))
			}
		})
		b.cancelConn()
	})
}

// drain is the second phase: wait up to timeout for clients to leave, then
// disconnect the rest.
func (b *BaseAdapter) drain(timeout time.Duration) error {
	b.log.info("Draining connections", "active", b.conns.count(), "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.conns.idle():
		b.log.info("Shutdown complete")
		return nil
	case <-timer.C:
	}

	remaining := b.conns.count()
	b.log.warn("Drain timeout, disconnecting clients", "active", remaining)
	closed := 0
	b.conns.each(func(addr string, nc net.Conn) {
		if err := nc.Close(); err != nil {
			b.log.debug("Force close failed", logger.ClientAddr(addr), logger.Err(err))
			return
		}
		closed++
		if b.Metrics != nil {
			b.Metrics.RecordConnectionForceClosed()
		}
	})
	return fmt.Errorf("%s: %d of %d: %w", b.protocol, closed, remaining, ErrForcedClose)
}

// Stop starts shutdown and waits for clients to leave until ctx is done.
// A nil ctx falls back to ShutdownTimeout and force-closes stragglers.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.beginShutdown()
	if ctx == nil {
		return b.drain(b.Config.ShutdownTimeout)
	}
	select {
	case <-b.conns.idle():
		return nil
	case <-ctx.Done():
		b.log.warn("Stop abandoned", "active", b.conns.count(), logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *BaseAdapter) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Shutdown:
			return
		case <-ticker.C:
			b.log.info("Connections", "active", b.conns.count())
		}
	}
}

// GetActiveConnections returns the number of connected clients.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.conns.count()
}

// GetListenerAddr blocks until the bind attempt finished and returns the
// bound address, or "" if it failed.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

func (b *BaseAdapter) Port() int        { return b.Config.Port }
func (b *BaseAdapter) Protocol() string { return b.protocol }

// connTable tracks live clients by remote address.
type connTable struct {
	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
}

func (t *connTable) init() { t.conns = make(map[string]net.Conn) }

func (t *connTable) add(addr string, nc net.Conn) int32 {
	t.wg.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[addr] = nc
	return int32(len(t.conns))
}

func (t *connTable) remove(addr string) int32 {
	t.mu.Lock()
	delete(t.conns, addr)
	n := int32(len(t.conns))
	t.mu.Unlock()
	t.wg.Done()
	return n
}

func (t *connTable) count() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int32(len(t.conns))
}

// each calls fn on a snapshot so fn may block or close sockets.
func (t *connTable) each(fn func(addr string, nc net.Conn)) {
	t.mu.Lock()
	snap := make(map[string]net.Conn, len(t.conns))
	for k, v := range t.conns {
		snap[k] = v
	}
	t.mu.Unlock()
	for k, v := range snap {
		fn(k, v)
	}
}

func (t *connTable) idle() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	return done
}

// connLog prefixes adapter log lines with the protocol attribute.
type connLog struct {
	protocol any
}

func (l *connLog) debug(msg string, args ...any) { logger.Debug(msg, l.with(args)...) }
func (l *connLog) info(msg string, args ...any)  { logger.Info(msg, l.with(args)...) }
func (l *connLog) warn(msg string, args ...any)  { logger.Warn(msg, l.with(args)...) }

func (l *connLog) with(args []any) []any {
	return append([]any{l.protocol}, args...)
}
