package session

import (
	"errors"
	"sync"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
)

var (
	ErrKeyAlreadyInstalled = errors.New("session key already installed")
	ErrEmptyKey            = errors.New("empty session key")
	ErrContextDestroyed    = errors.New("security context destroyed")
)

// SecurityContext is the mutable security state of one connection.
type SecurityContext struct {
	dialect         dialect.Version
	signingRequired bool

	mu        sync.Mutex
	key       []byte
	sequence  uint64
	destroyed bool
}

// New creates a context for a negotiated dialect. signingRequired is the
// effective policy decided by the caller.
func New(d dialect.Version, signingRequired bool) *SecurityContext {
	return &SecurityContext{dialect: d, signingRequired: signingRequired}
}

func (c *SecurityContext) Dialect() dialect.Version { return c.dialect }
func (c *SecurityContext) SigningRequired() bool    { return c.signingRequired }

// InstallKey stores a copy of key. It succeeds at most once per context.
func (c *SecurityContext) InstallKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	if c.key != nil {
		return ErrKeyAlreadyInstalled
	}
	c.key = append([]byte(nil), key...)
	return nil
}

func (c *SecurityContext) HasKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.key) > 0
}

// Key returns a copy of the session key, or nil before installation.
func (c *SecurityContext) Key() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return nil
	}
	return append([]byte(nil), c.key...)
}

// ShouldSign reports whether messages on this context carry signatures.
// A missing key means "skip signing", not an error.
func (c *SecurityContext) ShouldSign() bool {
	return c.signingRequired && c.HasKey()
}

// SequenceCounter returns the next SMB1 sequence number to be used.
func (c *SecurityContext) SequenceCounter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// Sequenced runs fn with the session key and the current SMB1 sequence
// number while holding the context lock. The counter advances by one only
// when fn returns nil.
func (c *SecurityContext) Sequenced(fn func(key []byte, seq uint64) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	if err := fn(c.key, c.sequence); err != nil {
		return err
	}
	c.sequence++
	return nil
}

// Peek runs fn with the session key and the next SMB1 sequence number
// while holding the context lock. The counter is left unchanged.
func (c *SecurityContext) Peek(fn func(key []byte, next uint64) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	return fn(c.key, c.sequence)
}

// Destroy zeroes the key. Further signing is skipped and InstallKey fails.
func (c *SecurityContext) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.key)
	c.key = nil
	c.destroyed = true
}
