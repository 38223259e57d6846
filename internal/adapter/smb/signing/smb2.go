package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

const (
	smb2HeaderSize = header.HeaderSize

	// SMB2SignatureSize is the on-wire signature width. HMAC-SHA256 output
	// is truncated to it.
	SMB2SignatureSize = header.SignatureSize

	// SMB2KeySize is the signing key width; longer session keys are
	// truncated and shorter ones zero-padded.
	SMB2KeySize = 16
)

// The digest must be at least as wide as the field it is truncated into.
var _ [sha256.Size - SMB2SignatureSize]struct{}

func smb2SigningKey(sessionKey []byte) []byte {
	k := make([]byte, SMB2KeySize)
	copy(k, sessionKey)
	return k
}

// computeSMB2 returns the signature for msg as if its signature field were
// zero. msg is not modified.
func computeSMB2(sessionKey, msg []byte) [SMB2SignatureSize]byte {
	var zero [SMB2SignatureSize]byte
	mac := hmac.New(sha256.New, smb2SigningKey(sessionKey))
	mac.Write(msg[:header.SignatureOffset])
	mac.Write(zero[:])
	mac.Write(msg[header.SignatureOffset+SMB2SignatureSize:])

	var sig [SMB2SignatureSize]byte
	copy(sig[:], mac.Sum(nil))
	return sig
}

// signSMB2 sets SMB2_FLAGS_SIGNED, then zeroes and fills the signature
// field.
func signSMB2(sessionKey, msg []byte) {
	flags := binary.LittleEndian.Uint32(msg[header.FlagsOffset:])
	binary.LittleEndian.PutUint32(msg[header.FlagsOffset:], flags|uint32(types.FlagSigned))

	field := msg[header.SignatureOffset : header.SignatureOffset+SMB2SignatureSize]
	clear(field)
	sig := computeSMB2(sessionKey, msg)
	copy(field, sig[:])
}

func verifySMB2(sessionKey, msg []byte) bool {
	want := computeSMB2(sessionKey, msg)
	return hmac.Equal(want[:], msg[header.SignatureOffset:header.SignatureOffset+SMB2SignatureSize])
}

// ComputeSMB2 exposes the raw SMB2 signature computation for tooling that
// signs without a SecurityContext, such as the probe client.
func ComputeSMB2(sessionKey, msg []byte) ([SMB2SignatureSize]byte, error) {
	if len(msg) < smb2HeaderSize {
		return [SMB2SignatureSize]byte{}, ErrMessageTooShort
	}
	return computeSMB2(sessionKey, msg), nil
}
