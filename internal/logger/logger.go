// Package logger is the process-wide structured logger.
//
// It wraps log/slog behind a small package-level facade so protocol code can
// log without threading a *slog.Logger through every call. The level can be
// changed at runtime (config reload) without rebuilding handlers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	slogger  *slog.Logger
	format   = FormatText
	output   io.Writer = os.Stdout
	closer   io.Closer
	useColor bool
)

func init() {
	level.Set(slog.LevelInfo)
	useColor = isTerminal(os.Stdout.Fd())
	rebuild()
}

// rebuild swaps the handler. Callers must not hold mu.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init applies cfg. Empty fields keep their current value.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, c, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, closer, useColor = w, c, color
		mu.Unlock()
	}

	if cfg.Level != "" {
		if !SetLevel(cfg.Level) {
			return fmt.Errorf("invalid log level %q", cfg.Level)
		}
	}
	if cfg.Format != "" {
		if !SetFormat(cfg.Format) {
			return fmt.Errorf("invalid log format %q", cfg.Format)
		}
	}

	rebuild()
	return nil
}

func openOutput(dest string) (io.Writer, io.Closer, bool, error) {
	switch strings.ToLower(dest) {
	case "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout.Fd()), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr.Fd()), nil
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, false, fmt.Errorf("open log file %q: %w", dest, err)
	}
	return f, f, false, nil
}

// InitWithWriter points the logger at w. Used by tests and the probe command.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output = w
	closer = nil
	useColor = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	rebuild()
}

// Close releases a file output opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	output = os.Stdout
	return err
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SetLevel changes the minimum level. Invalid names are ignored and reported
// through the return value.
func SetLevel(name string) bool {
	l, ok := ParseLevel(name)
	if !ok {
		return false
	}
	level.Set(l)
	return true
}

// CurrentLevel returns the active level name.
func CurrentLevel() string {
	return levelName(level.Level())
}

// SetFormat switches between text and json output.
func SetFormat(name string) bool {
	name = strings.ToLower(name)
	if name != FormatText && name != FormatJSON {
		return false
	}
	mu.Lock()
	changed := format != name
	format = name
	mu.Unlock()
	if changed {
		rebuild()
	}
	return true
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

func enabled(l slog.Level) bool {
	return l >= level.Level()
}

func Debug(msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		get().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		get().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		get().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// DebugCtx logs at debug level, prepending the LogContext carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		get().Debug(msg, withContextFields(ctx, args)...)
	}
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		get().Info(msg, withContextFields(ctx, args)...)
	}
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		get().Warn(msg, withContextFields(ctx, args)...)
	}
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().Error(msg, withContextFields(ctx, args)...)
}

func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 14+len(args))
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyConnectionID, lc.ConnectionID)
	add(KeyClientAddr, lc.ClientAddr)
	add(KeyDialect, lc.Dialect)
	add(KeyCommand, lc.Command)
	if lc.SessionID != 0 {
		out = append(out, KeySessionID, fmt.Sprintf("0x%016x", lc.SessionID))
	}
	return append(out, args...)
}

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Duration returns milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func Debugf(format string, v ...any) {
	if enabled(slog.LevelDebug) {
		get().Debug(fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...any) {
	if enabled(slog.LevelInfo) {
		get().Info(fmt.Sprintf(format, v...))
	}
}

func Warnf(format string, v ...any) {
	if enabled(slog.LevelWarn) {
		get().Warn(fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...any) {
	get().Error(fmt.Sprintf(format, v...))
}

// IsTerminal reports whether fd is an interactive terminal.
func IsTerminal(fd uintptr) bool {
	return isTerminal(fd)
}
