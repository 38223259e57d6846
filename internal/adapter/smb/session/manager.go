package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is an authenticated (or guest) SMB session.
type Session struct {
	ID         uint64
	ClientAddr string
	Username   string
	Domain     string
	Guest      bool
	Mechanism  string
	CreatedAt  time.Time

	// PreauthHash is the 3.1.1 session preauth integrity value when setup
	// completed, the input to 3.1.1 key derivation. Nil on other dialects.
	PreauthHash []byte

	// Security is owned by the connection that set the session up.
	Security *SecurityContext
}

// Manager is the server-wide session table. All methods are safe for
// concurrent use.
type Manager struct {
	sessions sync.Map // uint64 -> *Session
	nextID   atomic.Uint64
	count    atomic.Int64
	credits  CreditConfig
}

func NewManager(credits CreditConfig) *Manager {
	return &Manager{credits: credits}
}

func NewDefaultManager() *Manager {
	return NewManager(DefaultCreditConfig())
}

// GenerateID reserves a session ID. IDs start at 1; 0 means "no session".
func (m *Manager) GenerateID() uint64 {
	return m.nextID.Add(1)
}

// Store registers s under s.ID.
func (m *Manager) Store(s *Session) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if _, loaded := m.sessions.Swap(s.ID, s); !loaded {
		m.count.Add(1)
	}
}

func (m *Manager) Get(id uint64) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Delete removes the session and wipes its key material.
func (m *Manager) Delete(id uint64) {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	m.count.Add(-1)
	v.(*Session).Security.Destroy()
}

func (m *Manager) Count() int {
	return int(m.count.Load())
}

// Range calls fn for each session until fn returns false.
func (m *Manager) Range(fn func(*Session) bool) {
	m.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

// GrantCredits returns the credits to put in a response.
func (m *Manager) GrantCredits(requested uint16) uint16 {
	return m.credits.Grant(requested)
}
