package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 45, 0, time.Local)

	tests := []struct {
		name string
		line string
		zero bool
	}{
		{name: "bracketed text", line: "[2024-01-15 10:30:45] [INFO] Server is running"},
		{name: "plain text", line: "2024-01-15 10:30:45 INFO started"},
		{name: "json", line: `{"time":"` + want.Format(time.RFC3339Nano) + `","level":"INFO","msg":"x"}`},
		{name: "garbage", line: "panic: runtime error", zero: true},
		{name: "short", line: "[2024", zero: true},
		{name: "bad json", line: `{"time":`, zero: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lineTime(tt.line)
			if tt.zero {
				assert.True(t, got.IsZero())
				return
			}
			assert.True(t, want.Equal(got), "got %v", got)
		})
	}
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittosmb.log")
	lines := []string{
		"[2024-01-15 10:00:00] [INFO] one",
		"[2024-01-15 10:00:01] [INFO] two",
		"[2024-01-15 10:00:02] [INFO] three",
		"[2024-01-15 10:00:03] [INFO] four",
	}
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var out bytes.Buffer
	offset, err := tailLines(&out, path, 2, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), offset)
	assert.Equal(t, lines[2]+"\n"+lines[3]+"\n", out.String())

	out.Reset()
	since := time.Date(2024, 1, 15, 10, 0, 1, 0, time.Local)
	_, err = tailLines(&out, path, 10, since)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines[1:], "\n")+"\n", out.String())
}

func TestCopyFromHandlesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittosmb.log")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\n"), 0644))

	var out bytes.Buffer
	offset, err := copyFrom(&out, path, 6)
	require.NoError(t, err)
	assert.Equal(t, "second\n", out.String())
	assert.Equal(t, int64(13), offset)

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0644))
	out.Reset()
	offset, err = copyFrom(&out, path, offset)
	require.NoError(t, err)
	assert.Equal(t, "new\n", out.String())
	assert.Equal(t, int64(4), offset)
}
