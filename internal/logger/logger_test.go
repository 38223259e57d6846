package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture points the logger at a buffer in plain text mode and restores the
// previous level afterwards.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := CurrentLevel()
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "DEBUG", FormatText, false)
	t.Cleanup(func() {
		SetLevel(prev)
		SetFormat(FormatText)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"INFO", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t)
			require.True(t, SetLevel(tt.level))

			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		capture(t)
		assert.True(t, SetLevel("warn"))
		assert.Equal(t, "WARN", CurrentLevel())
	})

	t.Run("InvalidIgnored", func(t *testing.T) {
		capture(t)
		require.True(t, SetLevel("ERROR"))
		assert.False(t, SetLevel("LOUD"))
		assert.Equal(t, "ERROR", CurrentLevel())
	})
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" debug ")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, l)

	_, ok = ParseLevel("trace")
	assert.False(t, ok)
}

func TestTextFormat(t *testing.T) {
	buf := capture(t)

	Info("negotiated", "dialect", "0x311", "note", "two words", "empty", "")

	line := buf.String()
	assert.Contains(t, line, "[INFO] negotiated")
	assert.Contains(t, line, "dialect=0x311")
	assert.Contains(t, line, `note="two words"`)
	assert.Contains(t, line, `empty=""`)
	assert.True(t, strings.HasPrefix(line, "["))
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestTextGroupsAndAttrs(t *testing.T) {
	buf := capture(t)

	With("connection_id", "c1").WithGroup("smb").Info("msg", "command", "ECHO")

	line := buf.String()
	assert.Contains(t, line, "connection_id=c1")
	assert.Contains(t, line, "smb.command=ECHO")
}

func TestErrAttr(t *testing.T) {
	buf := capture(t)

	Warn("with error", Err(errors.New("boom")))
	Warn("without error", Err(nil))

	out := buf.String()
	assert.Contains(t, out, "error=boom")
	assert.NotContains(t, strings.Split(out, "\n")[1], "error=")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	require.True(t, SetFormat(FormatJSON))

	Info("json message", "key", "value", "n", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "json message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.EqualValues(t, 42, entry["n"])
	assert.Contains(t, entry, "time")
}

func TestSetFormatRejectsUnknown(t *testing.T) {
	capture(t)
	assert.False(t, SetFormat("xml"))
}

func TestContextLogging(t *testing.T) {
	t.Run("InjectsFields", func(t *testing.T) {
		buf := capture(t)

		lc := NewLogContext("conn-7", "10.0.0.5:50123").WithDialect("0x302").WithSession(0x42)
		ctx := WithContext(context.Background(), lc)
		InfoCtx(ctx, "session established")

		out := buf.String()
		assert.Contains(t, out, "connection_id=conn-7")
		assert.Contains(t, out, "client=10.0.0.5:50123")
		assert.Contains(t, out, "dialect=0x302")
		assert.Contains(t, out, "session_id=0x0000000000000042")
	})

	t.Run("NoLogContext", func(t *testing.T) {
		buf := capture(t)
		DebugCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("NilContext", func(t *testing.T) {
		assert.Nil(t, FromContext(nil)) //nolint:staticcheck
	})
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("c", "addr")
	clone := lc.WithCommand("ECHO")

	assert.Empty(t, lc.Command)
	assert.Equal(t, "ECHO", clone.Command)
	assert.Equal(t, lc.StartTime, clone.StartTime)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
}

func TestConcurrentLogging(t *testing.T) {
	buf := &lockedBuffer{}
	InitWithWriter(buf, "INFO", FormatText, false)
	t.Cleanup(func() { SetLevel("INFO") })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "worker", i)
				if j%10 == 0 {
					SetLevel("INFO")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, strings.Count(buf.String(), "concurrent"))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
