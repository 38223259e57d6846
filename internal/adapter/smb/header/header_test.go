package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

func sampleHeader() *SMB2Header {
	h := &SMB2Header{
		CreditCharge: 1,
		Status:       types.StatusMoreProcessingRequired,
		Command:      types.CommandSessionSetup,
		Credits:      31,
		Flags:        types.FlagServerToRedir | types.FlagSigned,
		MessageID:    0x0102030405060708,
		Reserved:     0xFEFF,
		TreeID:       7,
		SessionID:    0xAABBCCDD00112233,
	}
	for i := range h.Signature {
		h.Signature[i] = byte(0xA0 + i)
	}
	return h
}

func TestEncodeLayout(t *testing.T) {
	b := sampleHeader().Bytes()
	require.Len(t, b, HeaderSize)

	assert.Equal(t, []byte{0xFE, 'S', 'M', 'B'}, b[0:4])
	assert.Equal(t, []byte{64, 0}, b[4:6])
	assert.Equal(t, []byte{0x16, 0x00, 0x00, 0xC0}, b[8:12])
	assert.Equal(t, []byte{0x01, 0x00}, b[12:14])
	assert.Equal(t, byte(0x09), b[FlagsOffset])
	assert.Equal(t, byte(0x08), b[24])
	assert.Equal(t, byte(0x33), b[40])
	assert.Equal(t, byte(0xA0), b[SignatureOffset])
}

func TestParseRoundTrip(t *testing.T) {
	want := sampleHeader()
	got, err := Parse(want.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.IsResponse())
	assert.True(t, got.IsSigned())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)

	b := sampleHeader().Bytes()
	b[0] = 0xFF
	_, err = Parse(b)
	assert.ErrorIs(t, err, ErrInvalidProtocolID)

	b = sampleHeader().Bytes()
	b[4] = 63
	_, err = Parse(b)
	assert.ErrorIs(t, err, ErrInvalidHeaderSize)
}

func TestNewResponse(t *testing.T) {
	req := &SMB2Header{
		Command:   types.CommandEcho,
		MessageID: 9,
		SessionID: 42,
		TreeID:    3,
		Flags:     types.FlagSigned,
	}
	resp := NewResponse(req, types.StatusSuccess, 1)
	assert.Equal(t, types.CommandEcho, resp.Command)
	assert.Equal(t, uint64(9), resp.MessageID)
	assert.Equal(t, uint64(42), resp.SessionID)
	assert.True(t, resp.IsResponse())
	assert.False(t, resp.IsSigned())
	assert.Equal(t, uint16(1), resp.Credits)
}

func TestMarkers(t *testing.T) {
	assert.True(t, IsSMB2([]byte{0xFE, 'S', 'M', 'B'}))
	assert.False(t, IsSMB2([]byte{0xFE, 'S'}))
	assert.True(t, IsSMB1([]byte{0xFF, 'S', 'M', 'B', 0x72}))
	assert.False(t, IsSMB1([]byte{0xFE, 'S', 'M', 'B'}))
}
