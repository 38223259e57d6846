package adapter

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// holdConn reads until the socket fails. With hold set it then blocks
// until release is closed, like a client stuck mid-request.
type holdConn struct {
	conn    net.Conn
	hold    bool
	release chan struct{}
}

func (h *holdConn) Serve(ctx context.Context) {
	defer h.conn.Close()
	buf := make([]byte, 64)
	for {
		if _, err := h.conn.Read(buf); err != nil {
			if h.hold {
				<-h.release
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

type factoryFunc func(net.Conn) ConnectionHandler

func (f factoryFunc) NewConnection(c net.Conn) ConnectionHandler { return f(c) }

type countingMetrics struct {
	accepted, closed, forced atomic.Int32
	active                   atomic.Int32
}

func (m *countingMetrics) RecordConnectionAccepted()    { m.accepted.Add(1) }
func (m *countingMetrics) RecordConnectionClosed()      { m.closed.Add(1) }
func (m *countingMetrics) RecordConnectionForceClosed() { m.forced.Add(1) }
func (m *countingMetrics) SetActiveConnections(n int32) { m.active.Store(n) }

func startBase(t *testing.T, cfg BaseConfig, m MetricsRecorder, f ConnectionFactory, pre func(net.Conn) bool) (*BaseAdapter, chan error) {
	t.Helper()
	cfg.BindAddress = "127.0.0.1"
	b := NewBaseAdapter(cfg, "SMB")
	b.Metrics = m
	done := make(chan error, 1)
	go func() { done <- b.ServeWithFactory(context.Background(), f, pre, nil) }()
	require.NotEmpty(t, b.GetListenerAddr())
	return b, done
}

func TestBaseAdapterTracksClients(t *testing.T) {
	m := &countingMetrics{}
	b, done := startBase(t, BaseConfig{ShutdownTimeout: time.Second}, m,
		factoryFunc(func(c net.Conn) ConnectionHandler { return &holdConn{conn: c} }), nil)

	c, err := net.Dial("tcp", b.GetListenerAddr())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return b.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return b.GetActiveConnections() == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Stop(context.Background()))
	assert.NoError(t, <-done)
	assert.Equal(t, "SMB", b.Protocol())
	assert.Equal(t, int32(1), m.accepted.Load())
	assert.Eventually(t, func() bool { return m.closed.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBaseAdapterPreAcceptVeto(t *testing.T) {
	var built atomic.Int32
	b, done := startBase(t, BaseConfig{ShutdownTimeout: time.Second}, nil,
		factoryFunc(func(c net.Conn) ConnectionHandler {
			built.Add(1)
			return &holdConn{conn: c}
		}),
		func(net.Conn) bool { return false })

	c, err := net.Dial("tcp", b.GetListenerAddr())
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Zero(t, built.Load())

	require.NoError(t, b.Stop(context.Background()))
	assert.NoError(t, <-done)
}

func TestBaseAdapterStopWakesReaders(t *testing.T) {
	b, done := startBase(t, BaseConfig{ShutdownTimeout: time.Second}, nil,
		factoryFunc(func(c net.Conn) ConnectionHandler { return &holdConn{conn: c} }), nil)

	c, err := net.Dial("tcp", b.GetListenerAddr())
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return b.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	assert.NoError(t, <-done)
	assert.Zero(t, b.GetActiveConnections())
}

func TestBaseAdapterForceClose(t *testing.T) {
	m := &countingMetrics{}
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b, done := startBase(t, BaseConfig{ShutdownTimeout: 200 * time.Millisecond}, m,
		factoryFunc(func(c net.Conn) ConnectionHandler {
			return &holdConn{conn: c, hold: true, release: release}
		}), nil)

	c, err := net.Dial("tcp", b.GetListenerAddr())
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return b.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	b.beginShutdown()
	err = <-done
	assert.ErrorIs(t, err, ErrForcedClose)
	assert.Equal(t, int32(1), m.forced.Load())
}

func TestBaseAdapterBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", Port: port}, "SMB")
	err = b.ServeWithFactory(context.Background(), factoryFunc(nil), nil, nil)
	require.Error(t, err)
	assert.Empty(t, b.GetListenerAddr())
}
