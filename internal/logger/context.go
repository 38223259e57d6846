package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection-scoped logging fields.
type LogContext struct {
	TraceID      string
	SpanID       string
	ConnectionID string
	ClientAddr   string
	Dialect      string // "0x311", "NT LM 0.12", empty before negotiation
	Command      string
	SessionID    uint64
	StartTime    time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext starts a context for a freshly accepted connection.
func NewLogContext(connectionID, clientAddr string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		ClientAddr:   clientAddr,
		StartTime:    time.Now(),
	}
}

// Clone copies lc. A nil receiver yields nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

func (lc *LogContext) WithDialect(dialect string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Dialect = dialect
	}
	return c
}

func (lc *LogContext) WithCommand(command string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Command = command
	}
	return c
}

func (lc *LogContext) WithSession(sessionID uint64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.SessionID = sessionID
	}
	return c
}

func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns milliseconds since StartTime, 0 when unset.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
