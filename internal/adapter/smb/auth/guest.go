package auth

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosmb/internal/logger"
)

const MechanismNTLMGuest = "ntlm-guest"

// GuestAuthenticator completes NTLM handshakes as an anonymous guest. It
// never produces a session key, so guest sessions are not signed.
type GuestAuthenticator struct {
	ComputerName string
}

var _ Authenticator = (*GuestAuthenticator)(nil)

func NewGuestAuthenticator(computerName string) *GuestAuthenticator {
	return &GuestAuthenticator{ComputerName: computerName}
}

func (g *GuestAuthenticator) Accept(ctx context.Context, token []byte) (*Result, error) {
	guest := Identity{Guest: true, Mechanism: MechanismNTLMGuest}
	if len(token) == 0 {
		return &Result{Done: true, Identity: guest}, nil
	}

	wrapped := !isNTLM(token)
	inner := token
	if wrapped {
		parsed, err := ParseToken(token)
		if err != nil {
			return nil, err
		}
		if parsed.Type == TokenTypeInit && !parsed.HasNTLM() {
			return nil, fmt.Errorf("%w: offered %v", ErrUnsupportedMech, parsed.MechTypes)
		}
		if len(parsed.MechToken) == 0 {
			return nil, ErrNoMechToken
		}
		inner = parsed.MechToken
	}

	switch ntlmMessageType(inner) {
	case ntlmNegotiate:
		challenge, err := buildNTLMChallenge(g.ComputerName)
		if err != nil {
			return nil, err
		}
		if wrapped {
			if challenge, err = BuildAcceptIncomplete(OIDNTLMSSP, challenge); err != nil {
				return nil, err
			}
		}
		return &Result{Token: challenge}, nil

	case ntlmAuthenticate:
		if user, domain, err := ntlmIdentity(inner); err == nil {
			guest.Username, guest.Domain = user, domain
		}
		logger.DebugCtx(ctx, "NTLM logon mapped to guest",
			logger.Username(guest.Username), logger.Domain(guest.Domain))

		var out []byte
		if wrapped {
			var err error
			if out, err = BuildAcceptComplete(OIDNTLMSSP, nil); err != nil {
				return nil, err
			}
		}
		return &Result{Token: out, Done: true, Identity: guest}, nil
	}
	return nil, fmt.Errorf("%w: unexpected NTLM message", ErrInvalidToken)
}
