package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// Only enough NTLMSSP to let a client complete a guest logon: message type
// detection, a CHALLENGE without credentials check, and the identity fields
// of AUTHENTICATE for logging.

const (
	ntlmNegotiate    uint32 = 1
	ntlmChallenge    uint32 = 2
	ntlmAuthenticate uint32 = 3
)

var ntlmSignature = []byte("NTLMSSP\x00")

const (
	ntlmFlagUnicode       uint32 = 0x00000001
	ntlmFlagRequestTarget uint32 = 0x00000004
	ntlmFlagNTLM          uint32 = 0x00000200
	ntlmFlagAnonymous     uint32 = 0x00000800
	ntlmFlagAlwaysSign    uint32 = 0x00008000
	ntlmFlagTargetServer  uint32 = 0x00020000
	ntlmFlagExtendedSec   uint32 = 0x00080000
	ntlmFlagTargetInfo    uint32 = 0x00800000
	ntlmFlag128           uint32 = 0x20000000
	ntlmFlag56            uint32 = 0x80000000
)

func isNTLM(tok []byte) bool {
	return len(tok) >= 12 && bytes.Equal(tok[:8], ntlmSignature)
}

func ntlmMessageType(tok []byte) uint32 {
	if !isNTLM(tok) {
		return 0
	}
	return binary.LittleEndian.Uint32(tok[8:12])
}

// buildNTLMChallenge returns a CHALLENGE carrying a random server challenge
// and the NetBIOS computer name in target info.
func buildNTLMChallenge(computer string) ([]byte, error) {
	var challenge [8]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return nil, fmt.Errorf("ntlm challenge: %w", err)
	}

	name := types.EncodeUTF16LE(computer)
	info := smbenc.NewWriter(8 + len(name))
	info.WriteUint16(1) // MsvAvNbComputerName
	info.WriteUint16(uint16(len(name)))
	info.WriteBytes(name)
	info.WriteUint32(0) // MsvAvEOL

	const base = 56
	flags := ntlmFlagUnicode | ntlmFlagRequestTarget | ntlmFlagNTLM | ntlmFlagAlwaysSign |
		ntlmFlagTargetServer | ntlmFlagExtendedSec | ntlmFlagTargetInfo | ntlmFlag128 | ntlmFlag56

	w := smbenc.NewWriter(base + len(name) + info.Len())
	w.WriteBytes(ntlmSignature)
	w.WriteUint32(ntlmChallenge)
	w.WriteUint16(uint16(len(name)))
	w.WriteUint16(uint16(len(name)))
	w.WriteUint32(base)
	w.WriteUint32(flags)
	w.WriteBytes(challenge[:])
	w.WriteZeros(8)
	w.WriteUint16(uint16(info.Len()))
	w.WriteUint16(uint16(info.Len()))
	w.WriteUint32(uint32(base + len(name)))
	w.WriteZeros(8) // Version
	w.WriteBytes(name)
	w.WriteBytes(info.Bytes())
	return w.Bytes(), w.Err()
}

// ntlmIdentity extracts domain and user name from an AUTHENTICATE message.
func ntlmIdentity(tok []byte) (user, domain string, err error) {
	if ntlmMessageType(tok) != ntlmAuthenticate || len(tok) < 64 {
		return "", "", fmt.Errorf("%w: not an NTLM AUTHENTICATE", ErrInvalidToken)
	}
	flags := binary.LittleEndian.Uint32(tok[60:64])
	field := func(at int) (string, error) {
		n := int(binary.LittleEndian.Uint16(tok[at:]))
		off := int(binary.LittleEndian.Uint32(tok[at+4:]))
		raw, err := smbenc.Slice(tok, off, n)
		if err != nil {
			return "", err
		}
		if flags&ntlmFlagUnicode != 0 {
			return types.DecodeUTF16LE(raw)
		}
		return string(raw), nil
	}
	if domain, err = field(28); err != nil {
		return "", "", err
	}
	if user, err = field(36); err != nil {
		return "", "", err
	}
	return user, domain, nil
}
