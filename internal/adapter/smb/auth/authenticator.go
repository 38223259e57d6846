// Package auth is the authentication collaborator of the SMB server. It
// accepts SESSION_SETUP security buffers and eventually yields an identity
// and, when the mechanism produces one, a session key for signing.
//
// Two mechanisms are wired: Kerberos via a service keytab, and an NTLM guest
// logon that completes the handshake without checking credentials and
// therefore yields no key.
package auth

import (
	"context"
	"errors"

	"github.com/jcmturner/gofork/encoding/asn1"
)

var (
	ErrLogonFailure       = errors.New("logon failure")
	ErrUnsupportedMech    = errors.New("unsupported authentication mechanism")
	ErrKerberosNotEnabled = errors.New("kerberos not configured")
)

// Identity is who completed authentication.
type Identity struct {
	Username  string
	Domain    string
	Guest     bool
	Mechanism string
}

// Result of one Accept round. Done is false while the mechanism needs more
// round trips; Token goes back to the client either way.
type Result struct {
	Token      []byte
	Done       bool
	SessionKey []byte
	Identity   Identity
}

// Authenticator consumes one client security buffer per call.
type Authenticator interface {
	Accept(ctx context.Context, token []byte) (*Result, error)
}

// Chain routes a token to Kerberos or the NTLM guest path.
type Chain struct {
	Kerberos *KerberosAuthenticator
	Guest    *GuestAuthenticator
}

var _ Authenticator = (*Chain)(nil)

// InitialToken is the NEGOTIATE response hint listing the mechanisms this
// chain can complete.
func (c *Chain) InitialToken() ([]byte, error) {
	var mechs []asn1.ObjectIdentifier
	if c.Kerberos != nil {
		mechs = append(mechs, OIDMSKerberosV5, OIDKerberosV5)
	}
	if c.Guest != nil {
		mechs = append(mechs, OIDNTLMSSP)
	}
	return BuildNegTokenInit(mechs)
}

func (c *Chain) Accept(ctx context.Context, token []byte) (*Result, error) {
	if len(token) > 0 && token[0] == 0x60 {
		if parsed, err := ParseToken(token); err == nil && parsed.PreferredKerberos() && len(parsed.MechToken) > 0 {
			if c.Kerberos == nil {
				return nil, ErrKerberosNotEnabled
			}
			return c.Kerberos.acceptParsed(ctx, parsed)
		}
	}
	if c.Guest == nil {
		return nil, ErrLogonFailure
	}
	return c.Guest.Accept(ctx, token)
}
