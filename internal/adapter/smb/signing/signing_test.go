package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

var testKey = []byte("0123456789abcdef0123")

func keyed(t *testing.T, d dialect.Version) *session.SecurityContext {
	t.Helper()
	c := session.New(d, true)
	require.NoError(t, c.InstallKey(testKey))
	return c
}

func smb2Message(body int) []byte {
	h := &header.SMB2Header{Command: types.CommandEcho, MessageID: 5, SessionID: 77}
	msg := h.Bytes()
	for i := range body {
		msg = append(msg, byte(i*7))
	}
	return msg
}

func smb1Message(body int) []byte {
	msg := make([]byte, types.SMB1HeaderSize, types.SMB1HeaderSize+body)
	binary.LittleEndian.PutUint32(msg, types.SMB1ProtocolID)
	msg[4] = 0x2B
	for i := range body {
		msg = append(msg, byte(i))
	}
	return msg
}

func allDialects() []dialect.Version {
	return append(dialect.Preference(), dialect.SMB1)
}

func messageFor(d dialect.Version, body int) []byte {
	if d == dialect.SMB1 {
		return smb1Message(body)
	}
	return smb2Message(body)
}

func TestRoundTrip(t *testing.T) {
	var e Engine
	for _, d := range allDialects() {
		ctx := keyed(t, d)
		for i, body := range []int{0, 1, 33, 4096} {
			msg, err := e.SignOutbound(ctx, messageFor(d, body))
			require.NoError(t, err)

			ok, err := e.VerifyInbound(ctx, msg)
			require.NoError(t, err)
			assert.True(t, ok, "dialect %s body %d", d, body)

			if d == dialect.SMB1 {
				assert.Equal(t, uint64(i+1), ctx.SequenceCounter())
			}
		}
	}
}

func TestVerifyLeavesCounterAlone(t *testing.T) {
	var e Engine
	ctx := keyed(t, dialect.SMB1)
	msg, err := e.SignOutbound(ctx, smb1Message(5))
	require.NoError(t, err)
	require.Equal(t, uint64(1), ctx.SequenceCounter())

	for range 3 {
		ok, err := e.VerifyInbound(ctx, msg)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Error(t, e.VerifyRequest(ctx, msg))
	}
	assert.Equal(t, uint64(1), ctx.SequenceCounter())
}

func TestTamperDetected(t *testing.T) {
	var e Engine
	for _, d := range allDialects() {
		signed, err := e.SignOutbound(keyed(t, d), messageFor(d, 40))
		require.NoError(t, err)

		sigStart, sigEnd := header.SignatureOffset, header.SignatureOffset+SMB2SignatureSize
		if d == dialect.SMB1 {
			sigStart, sigEnd = smb1SigStart, smb1SigEnd
		}
		for i := range signed {
			if i >= sigStart && i < sigEnd {
				continue
			}
			tampered := bytes.Clone(signed)
			tampered[i] ^= 0x01
			ok, err := e.VerifyInbound(keyed(t, d), tampered)
			require.NoError(t, err)
			require.False(t, ok, "dialect %s: flip at %d accepted", d, i)
		}
	}
}

func TestSMB2KnownAnswer(t *testing.T) {
	var e Engine
	msg := smb2Message(10)
	signed, err := e.SignOutbound(keyed(t, dialect.SMB210), bytes.Clone(msg))
	require.NoError(t, err)

	flags := binary.LittleEndian.Uint32(signed[header.FlagsOffset:])
	assert.NotZero(t, flags&uint32(types.FlagSigned))

	expectInput := bytes.Clone(signed)
	clear(expectInput[48:64])
	mac := hmac.New(sha256.New, testKey[:16])
	mac.Write(expectInput)
	assert.Equal(t, mac.Sum(nil)[:16], signed[48:64])

	sig, err := ComputeSMB2(testKey, signed)
	require.NoError(t, err)
	assert.Equal(t, signed[48:64], sig[:])
}

func TestSMB2ShortKeyIsZeroPadded(t *testing.T) {
	short := []byte{1, 2, 3}
	padded := append(bytes.Clone(short), make([]byte, 13)...)
	msg := smb2Message(4)
	a, _ := ComputeSMB2(short, msg)
	b, _ := ComputeSMB2(padded, msg)
	assert.Equal(t, a, b)
}

func TestSMB1KnownAnswer(t *testing.T) {
	var e Engine
	ctx := keyed(t, dialect.SMB1)
	msg := smb1Message(8)

	signed, err := e.SignOutbound(ctx, bytes.Clone(msg))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ctx.SequenceCounter())

	flags2 := binary.LittleEndian.Uint16(signed[10:12])
	assert.NotZero(t, flags2&types.SMB1Flags2SecuritySig)

	input := bytes.Clone(signed)
	binary.LittleEndian.PutUint64(input[14:22], 0)
	sum := md5.Sum(append(bytes.Clone(testKey), input...))
	assert.Equal(t, sum[:8], signed[14:22])
}

func TestSMB1RequestResponsePairing(t *testing.T) {
	var e Engine
	client, server := keyed(t, dialect.SMB1), keyed(t, dialect.SMB1)

	for range 5 {
		req, err := e.SignOutbound(client, smb1Message(3))
		require.NoError(t, err)
		require.NoError(t, e.VerifyRequest(server, req))

		resp, err := e.SignOutbound(server, smb1Message(6))
		require.NoError(t, err)
		require.NoError(t, e.Verify(client, resp))
	}
	assert.Equal(t, uint64(5), server.SequenceCounter())
	assert.Equal(t, uint64(5), client.SequenceCounter())
}

func TestSMB1ReplayRejected(t *testing.T) {
	var e Engine
	client, server := keyed(t, dialect.SMB1), keyed(t, dialect.SMB1)
	req, err := e.SignOutbound(client, smb1Message(3))
	require.NoError(t, err)
	require.NoError(t, e.VerifyRequest(server, bytes.Clone(req)))

	_, err = e.SignOutbound(server, smb1Message(6))
	require.NoError(t, err)
	assert.ErrorIs(t, e.VerifyRequest(server, req), ErrSignatureMismatch)
}

func TestSMB1ConcurrentCountersUnique(t *testing.T) {
	var e Engine
	ctx := keyed(t, dialect.SMB1)

	const n = 400
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sigs = make([][]byte, 0, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.SignOutbound(ctx, smb1Message(4))
			assert.NoError(t, err)
			mu.Lock()
			sigs = append(sigs, bytes.Clone(out[14:22]))
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(n), ctx.SequenceCounter())

	// Identical messages only differ through the counter, so every
	// signature must be unique and match exactly one counter value.
	want := make([]string, n)
	for i := range n {
		m := smb1Message(4)
		binary.LittleEndian.PutUint16(m[10:12], types.SMB1Flags2SecuritySig)
		binary.LittleEndian.PutUint64(m[14:22], uint64(i))
		s := md5.Sum(append(bytes.Clone(testKey), m...))
		want[i] = string(s[:8])
	}
	got := make([]string, n)
	for i, s := range sigs {
		got[i] = string(s)
	}
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func TestNoOpWithoutKeyOrRequirement(t *testing.T) {
	var e Engine
	for _, d := range allDialects() {
		noKey := session.New(d, true)
		notRequired := session.New(d, false)
		require.NoError(t, notRequired.InstallKey(testKey))

		for _, ctx := range []*session.SecurityContext{noKey, notRequired, nil} {
			orig := messageFor(d, 12)
			out, err := e.SignOutbound(ctx, bytes.Clone(orig))
			require.NoError(t, err)
			assert.Equal(t, orig, out)

			ok, err := e.VerifyInbound(ctx, orig)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Equal(t, uint64(0), noKey.SequenceCounter())
	}
}

func TestShortMessages(t *testing.T) {
	var e Engine
	_, err := e.SignOutbound(keyed(t, dialect.SMB311), make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)

	ctx := keyed(t, dialect.SMB1)
	_, err = e.SignOutbound(ctx, make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)
	assert.Equal(t, uint64(0), ctx.SequenceCounter())

	_, err = e.VerifyInbound(keyed(t, dialect.SMB202), make([]byte, 63))
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestDestroyedContextStopsSigning(t *testing.T) {
	var e Engine
	ctx := keyed(t, dialect.SMB300)
	ctx.Destroy()
	orig := smb2Message(2)
	out, err := e.SignOutbound(ctx, bytes.Clone(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, out)
}

func TestDestroyDuringSigningNeverUsesZeroKey(t *testing.T) {
	var e Engine
	for range 50 {
		ctx := keyed(t, dialect.SMB311)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				orig := smb2Message(16)
				out, err := e.SignOutbound(ctx, bytes.Clone(orig))
				if err != nil {
					assert.ErrorIs(t, err, session.ErrContextDestroyed)
					return
				}
				if bytes.Equal(out, orig) {
					return
				}
				want, _ := ComputeSMB2(testKey, out)
				assert.Equal(t, want[:], out[48:64])
			}()
		}
		ctx.Destroy()
		wg.Wait()
	}
}
