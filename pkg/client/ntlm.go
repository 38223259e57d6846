package client

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
)

// go-ntlmssp refuses anonymous logons, so the client writes that one
// AUTHENTICATE itself ([MS-NLMP] 3.2.5.1.2): empty user, domain and NT
// response, a single zero byte of LM response, and no session key.

const (
	ntlmAuthenticateType = 3
	ntlmAuthHeaderSize   = 72

	ntlmNegotiateUnicode   uint32 = 0x00000001
	ntlmNegotiateOEM       uint32 = 0x00000002
	ntlmNegotiateNTLM      uint32 = 0x00000200
	ntlmNegotiateAnonymous uint32 = 0x00000800
)

var errNotChallenge = errors.New("ntlm: not a CHALLENGE message")

func anonymousAuthenticate(challenge []byte) ([]byte, error) {
	if len(challenge) < 24 || !bytes.HasPrefix(challenge, []byte("NTLMSSP\x00")) ||
		binary.LittleEndian.Uint32(challenge[8:12]) != 2 {
		return nil, errNotChallenge
	}
	offered := binary.LittleEndian.Uint32(challenge[20:24])
	flags := ntlmNegotiateNTLM | ntlmNegotiateAnonymous
	if offered&ntlmNegotiateUnicode != 0 {
		flags |= ntlmNegotiateUnicode
	} else {
		flags |= ntlmNegotiateOEM
	}

	lm := []byte{0}
	field := func(w *smbenc.Writer, n, off int) {
		w.WriteUint16(uint16(n))
		w.WriteUint16(uint16(n))
		w.WriteUint32(uint32(off))
	}

	w := smbenc.NewWriter(ntlmAuthHeaderSize + len(lm))
	w.WriteBytes([]byte("NTLMSSP\x00"))
	w.WriteUint32(ntlmAuthenticateType)
	field(w, len(lm), ntlmAuthHeaderSize)
	end := ntlmAuthHeaderSize + len(lm)
	for range 5 { // NT response, domain, user, workstation, session key
		field(w, 0, end)
	}
	w.WriteUint32(flags)
	w.WriteZeros(8) // Version
	w.WriteBytes(lm)
	return w.Bytes(), w.Err()
}
