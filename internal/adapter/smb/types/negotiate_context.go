package types

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/smbenc"
)

// negotiateContextHeaderSize covers ContextType, DataLength and Reserved.
const negotiateContextHeaderSize = 8

// NegotiateContext is one entry of a 3.1.1 negotiate context list.
//
// [MS-SMB2] 2.2.3.1
type NegotiateContext struct {
	Type uint16
	Data []byte
}

func (c NegotiateContext) String() string {
	switch c.Type {
	case NegCtxPreauthIntegrity:
		return "PREAUTH_INTEGRITY"
	case NegCtxEncryption:
		return "ENCRYPTION"
	case NegCtxCompression:
		return "COMPRESSION"
	case NegCtxNetname:
		return "NETNAME"
	case NegCtxTransport:
		return "TRANSPORT"
	case NegCtxRDMATransform:
		return "RDMA_TRANSFORM"
	case NegCtxSigning:
		return "SIGNING"
	}
	return fmt.Sprintf("CONTEXT_0x%04X", c.Type)
}

// PreauthIntegrityCaps is SMB2_PREAUTH_INTEGRITY_CAPABILITIES.
type PreauthIntegrityCaps struct {
	HashAlgorithms []uint16
	Salt           []byte
}

// Context wraps the capabilities into a negotiate context.
func (p PreauthIntegrityCaps) Context() NegotiateContext {
	w := smbenc.NewWriter(4 + 2*len(p.HashAlgorithms) + len(p.Salt))
	w.WriteUint16(uint16(len(p.HashAlgorithms)))
	w.WriteUint16(uint16(len(p.Salt)))
	for _, alg := range p.HashAlgorithms {
		w.WriteUint16(alg)
	}
	w.WriteBytes(p.Salt)
	return NegotiateContext{Type: NegCtxPreauthIntegrity, Data: w.Bytes()}
}

// ParsePreauthIntegrityCaps decodes the data of a PREAUTH_INTEGRITY context.
func ParsePreauthIntegrityCaps(data []byte) (PreauthIntegrityCaps, error) {
	r := smbenc.NewReader(data)
	n := r.ReadUint16()
	saltLen := r.ReadUint16()
	var caps PreauthIntegrityCaps
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		caps.HashAlgorithms = append(caps.HashAlgorithms, r.ReadUint16())
	}
	caps.Salt = r.ReadBytes(int(saltLen))
	if err := r.Err(); err != nil {
		return PreauthIntegrityCaps{}, fmt.Errorf("preauth integrity context: %w", err)
	}
	return caps, nil
}

// EncryptionCaps is SMB2_ENCRYPTION_CAPABILITIES.
type EncryptionCaps struct {
	Ciphers []uint16
}

// Context wraps the capabilities into a negotiate context.
func (e EncryptionCaps) Context() NegotiateContext {
	w := smbenc.NewWriter(2 + 2*len(e.Ciphers))
	w.WriteUint16(uint16(len(e.Ciphers)))
	for _, c := range e.Ciphers {
		w.WriteUint16(c)
	}
	return NegotiateContext{Type: NegCtxEncryption, Data: w.Bytes()}
}

// ParseEncryptionCaps decodes the data of an ENCRYPTION context.
func ParseEncryptionCaps(data []byte) (EncryptionCaps, error) {
	r := smbenc.NewReader(data)
	n := r.ReadUint16()
	var caps EncryptionCaps
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		caps.Ciphers = append(caps.Ciphers, r.ReadUint16())
	}
	if err := r.Err(); err != nil {
		return EncryptionCaps{}, fmt.Errorf("encryption context: %w", err)
	}
	return caps, nil
}

// NetnameContext builds a client NETNAME context carrying host.
func NetnameContext(host string) NegotiateContext {
	return NegotiateContext{Type: NegCtxNetname, Data: EncodeUTF16LE(host)}
}

// ParseNetname decodes the data of a NETNAME context.
func ParseNetname(data []byte) (string, error) {
	name, err := DecodeUTF16LE(data)
	if err != nil {
		return "", fmt.Errorf("netname context: %w", err)
	}
	return name, nil
}

// ParseNegotiateContextList reads count contexts from data. Entries after the
// first start on an 8-byte boundary relative to data[0].
func ParseNegotiateContextList(data []byte, count int) ([]NegotiateContext, error) {
	if count == 0 {
		return nil, nil
	}
	r := smbenc.NewReader(data)
	out := make([]NegotiateContext, 0, count)
	for i := range count {
		if i > 0 {
			if rem := r.Position() % 8; rem != 0 {
				r.Skip(8 - rem)
			}
		}
		typ := r.ReadUint16()
		length := r.ReadUint16()
		r.Skip(4)
		payload := r.ReadBytes(int(length))
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("negotiate context %d: %w", i, err)
		}
		out = append(out, NegotiateContext{Type: typ, Data: payload})
	}
	return out, nil
}

// EncodeNegotiateContextList is the inverse of ParseNegotiateContextList. No
// padding follows the final context.
func EncodeNegotiateContextList(contexts []NegotiateContext) []byte {
	if len(contexts) == 0 {
		return nil
	}
	w := smbenc.NewWriter(64 * len(contexts))
	for i, c := range contexts {
		if i > 0 {
			w.Pad(8)
		}
		w.WriteUint16(c.Type)
		w.WriteUint16(uint16(len(c.Data)))
		w.WriteUint32(0)
		w.WriteBytes(c.Data)
	}
	return w.Bytes()
}

// FindContext returns the first context of the given type.
func FindContext(contexts []NegotiateContext, typ uint16) (NegotiateContext, bool) {
	for _, c := range contexts {
		if c.Type == typ {
			return c, true
		}
	}
	return NegotiateContext{}, false
}
