package session

import (
	"crypto/sha512"
	"sync"
)

// PreauthHashSize is the SHA-512 digest length.
const PreauthHashSize = sha512.Size

// PreauthIntegrity tracks the 3.1.1 preauth integrity hash chain:
// H(0) = 64 zero bytes, H(i) = SHA-512(H(i-1) || message i).
type PreauthIntegrity struct {
	mu    sync.Mutex
	value [PreauthHashSize]byte
}

// Update folds one NEGOTIATE or SESSION_SETUP message into the chain.
func (p *PreauthIntegrity) Update(msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := sha512.New()
	h.Write(p.value[:])
	h.Write(msg)
	copy(p.value[:], h.Sum(nil))
}

// Value returns the current chain value.
func (p *PreauthIntegrity) Value() [PreauthHashSize]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Clone copies the chain, used to fork a per-session value from the
// connection value after NEGOTIATE.
func (p *PreauthIntegrity) Clone() *PreauthIntegrity {
	return &PreauthIntegrity{value: p.Value()}
}
