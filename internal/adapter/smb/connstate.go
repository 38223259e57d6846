package smb

import (
	"sync"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
)

// SigningConfig is the local signing policy.
type SigningConfig struct {
	// Enabled allows signing at all. With it off, sessions are never signed
	// even when the client asks.
	Enabled bool

	// Required is advertised in NEGOTIATE responses and forces signing on
	// every session with a key.
	Required bool
}

// ConnectionState owns the per-connection negotiation state machine and
// the security context created once a dialect is fixed.
type ConnectionState struct {
	negotiator *negotiate.Negotiator
	policy     SigningConfig

	mu       sync.Mutex
	security *session.SecurityContext

	// sessionPreauth is the 3.1.1 chain of the session being set up,
	// forked from the connection chain on its first SESSION_SETUP.
	sessionPreauth *session.PreauthIntegrity
}

var _ handlers.ConnectionState = (*ConnectionState)(nil)

// NewConnectionState creates the state for a fresh connection.
func NewConnectionState(id negotiate.ServerIdentity, tokens negotiate.SecurityBufferSource, policy SigningConfig) *ConnectionState {
	return &ConnectionState{
		negotiator: negotiate.New(id, tokens, policy.Enabled && policy.Required),
		policy:     policy,
	}
}

// Negotiate runs NEGOTIATE and, when a concrete dialect was chosen, creates
// the security context for it.
func (c *ConnectionState) Negotiate(raw []byte) (*negotiate.Decision, error) {
	d, err := c.negotiator.Negotiate(raw)
	if err != nil || d.Upgrade {
		return d, err
	}

	c.mu.Lock()
	c.security = session.New(d.Dialect, c.effectiveSigning(d))
	c.mu.Unlock()
	return d, nil
}

// effectiveSigning combines local policy with what the client advertised.
// SMB1 clients are only held to signing when the server requires it.
func (c *ConnectionState) effectiveSigning(d *negotiate.Decision) bool {
	if !c.policy.Enabled {
		return false
	}
	if c.policy.Required {
		return true
	}
	return d.Dialect != dialect.SMB1 && d.ClientSecurityMode.SigningRequired()
}

func (c *ConnectionState) State() session.ConnState {
	return c.negotiator.State()
}

func (c *ConnectionState) Transition(to session.ConnState) error {
	return c.negotiator.Transition(to)
}

func (c *ConnectionState) Dialect() dialect.Version {
	return c.negotiator.Dialect()
}

func (c *ConnectionState) DialectText() string {
	return c.negotiator.DialectText()
}

// Security returns the live context, nil before negotiation.
func (c *ConnectionState) Security() *session.SecurityContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.security
}

// ResetSecurity destroys the current context and starts a keyless one on
// the same dialect and policy.
func (c *ConnectionState) ResetSecurity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.security == nil {
		return
	}
	old := c.security
	c.security = session.New(old.Dialect(), old.SigningRequired())
	c.sessionPreauth = nil
	old.Destroy()
}

// Preauth is the connection chain: 64 zero bytes folded with the NEGOTIATE
// request and response. Nil unless 3.1.1 was negotiated.
func (c *ConnectionState) Preauth() *session.PreauthIntegrity {
	return c.negotiator.Preauth()
}

// forkSessionPreauth starts the chain of a new session from the connection
// value ([MS-SMB2] 3.3.5.5). The connection chain itself is left alone.
func (c *ConnectionState) forkSessionPreauth() *session.PreauthIntegrity {
	conn := c.negotiator.Preauth()
	if conn == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionPreauth = conn.Clone()
	return c.sessionPreauth
}

// SessionPreauth returns the chain of the session being set up, or nil.
func (c *ConnectionState) SessionPreauth() *session.PreauthIntegrity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionPreauth
}

// Close wipes key material.
func (c *ConnectionState) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.security.Destroy()
}
