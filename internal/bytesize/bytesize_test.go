package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"1048576", 1048576, false},
		{"64Mi", 64 * MiB, false},
		{"64MiB", 64 * MiB, false},
		{"8MB", 8 * MB, false},
		{"1gi", GiB, false},
		{" 16 Ki ", 16 * KiB, false},
		{"1.5Ki", 1536, false},
		{"", 0, true},
		{"-1", 0, true},
		{"12XB", 0, true},
		{"Mi", 0, true},
		{"99999999999999999999", 0, true},
		{"99999999999Gi", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, v := range []ByteSize{0, 100, 8 * MiB, 3 * GiB, 2 * KiB, 1500} {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, v, back, "text %q", text)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "8.00MiB", (8 * MiB).String())
	assert.Equal(t, "1.50KiB", ByteSize(1536).String())
}

func TestInt(t *testing.T) {
	assert.Equal(t, 1024, KiB.Int())
	assert.Greater(t, ByteSize(1<<63+5).Int(), 0)
}
