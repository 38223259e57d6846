package signing

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

const (
	smb1HeaderSize = types.SMB1HeaderSize

	// SMB1SignatureSize is the SecuritySignature field width.
	SMB1SignatureSize = types.SMB1SecurityFeaturesSize

	smb1SigStart  = types.SMB1SecurityFeaturesStart
	smb1SigEnd    = smb1SigStart + SMB1SignatureSize
	smb1Flags2Off = 10
)

// writeSequence stores seq in the SecuritySignature field. The field holds
// the counter only while the digest is computed.
func writeSequence(msg []byte, seq uint64) {
	binary.LittleEndian.PutUint64(msg[smb1SigStart:smb1SigEnd], seq)
}

// writeSignature replaces the counter with the final signature.
func writeSignature(msg []byte, sig [SMB1SignatureSize]byte) {
	copy(msg[smb1SigStart:smb1SigEnd], sig[:])
}

// computeSMB1 digests key || msg. msg must already carry the sequence number.
func computeSMB1(key, msg []byte) [SMB1SignatureSize]byte {
	h := md5.New()
	h.Write(key)
	h.Write(msg)
	var sig [SMB1SignatureSize]byte
	copy(sig[:], h.Sum(nil))
	return sig
}

func signSMB1(key []byte, seq uint64, msg []byte) {
	flags2 := binary.LittleEndian.Uint16(msg[smb1Flags2Off:])
	binary.LittleEndian.PutUint16(msg[smb1Flags2Off:], flags2|types.SMB1Flags2SecuritySig)

	writeSequence(msg, seq)
	writeSignature(msg, computeSMB1(key, msg))
}

func verifySMB1(key []byte, seq uint64, msg []byte) bool {
	var got [SMB1SignatureSize]byte
	copy(got[:], msg[smb1SigStart:smb1SigEnd])

	scratch := append([]byte(nil), msg...)
	writeSequence(scratch, seq)
	want := computeSMB1(key, scratch)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}
