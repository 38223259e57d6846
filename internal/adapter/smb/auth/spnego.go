package auth

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// Mechanism OIDs seen in SPNEGO exchanges.
var (
	OIDMSKerberosV5 = asn1.ObjectIdentifier{1, 2, 840, 48018, 1, 2, 2}
	OIDKerberosV5   = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}
	OIDNTLMSSP      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}
	OIDSPNEGO       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 2}
)

// NegState is the RFC 4178 negState value.
type NegState int

const (
	NegStateAcceptCompleted  NegState = 0
	NegStateAcceptIncomplete NegState = 1
	NegStateReject           NegState = 2
	NegStateRequestMIC       NegState = 3
)

var (
	ErrInvalidToken = errors.New("spnego: invalid token format")
	ErrNoMechToken  = errors.New("spnego: no mechanism token present")
)

type TokenType int

const (
	TokenTypeInit TokenType = iota
	TokenTypeResp
)

// ParsedToken is the decoded content of a NegTokenInit or NegTokenResp.
type ParsedToken struct {
	Type          TokenType
	MechTypes     []asn1.ObjectIdentifier
	MechToken     []byte
	NegState      NegState
	SupportedMech asn1.ObjectIdentifier
}

// ParseToken accepts a GSS-API wrapped NegTokenInit (0x60), a bare
// NegTokenInit (0xa0) or a NegTokenResp (0xa1).
func ParseToken(data []byte) (*ParsedToken, error) {
	if len(data) < 2 {
		return nil, ErrInvalidToken
	}

	if data[0] == 0x60 {
		var tok spnego.SPNEGOToken
		if err := tok.Unmarshal(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if tok.Init {
			return fromInit(tok.NegTokenInit), nil
		}
		return fromResp(tok.NegTokenResp), nil
	}

	isInit, tok, err := spnego.UnmarshalNegToken(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if isInit {
		init, ok := tok.(spnego.NegTokenInit)
		if !ok {
			return nil, ErrInvalidToken
		}
		return fromInit(init), nil
	}
	resp, ok := tok.(spnego.NegTokenResp)
	if !ok {
		return nil, ErrInvalidToken
	}
	return fromResp(resp), nil
}

func fromInit(t spnego.NegTokenInit) *ParsedToken {
	return &ParsedToken{Type: TokenTypeInit, MechTypes: t.MechTypes, MechToken: t.MechTokenBytes}
}

func fromResp(t spnego.NegTokenResp) *ParsedToken {
	return &ParsedToken{
		Type:          TokenTypeResp,
		MechToken:     t.ResponseToken,
		NegState:      NegState(t.NegState),
		SupportedMech: t.SupportedMech,
	}
}

func (p *ParsedToken) HasMechanism(oid asn1.ObjectIdentifier) bool {
	for _, m := range p.MechTypes {
		if m.Equal(oid) {
			return true
		}
	}
	return false
}

func (p *ParsedToken) HasNTLM() bool { return p.HasMechanism(OIDNTLMSSP) }

func (p *ParsedToken) HasKerberos() bool {
	return p.HasMechanism(OIDKerberosV5) || p.HasMechanism(OIDMSKerberosV5)
}

// PreferredKerberos reports whether the client's first choice is Kerberos;
// only the first mechanism's optimistic token is sent.
func (p *ParsedToken) PreferredKerberos() bool {
	return len(p.MechTypes) > 0 &&
		(p.MechTypes[0].Equal(OIDKerberosV5) || p.MechTypes[0].Equal(OIDMSKerberosV5))
}

// BuildNegTokenInit builds the GSS-API wrapped server hint listing mechs,
// carried in NEGOTIATE responses.
func BuildNegTokenInit(mechs []asn1.ObjectIdentifier) ([]byte, error) {
	tok := spnego.SPNEGOToken{
		Init:         true,
		NegTokenInit: spnego.NegTokenInit{MechTypes: mechs},
	}
	return tok.Marshal()
}

// BuildInitWithToken wraps a client mechanism token; used by the probe.
func BuildInitWithToken(mech asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	tok := spnego.SPNEGOToken{
		Init:         true,
		NegTokenInit: spnego.NegTokenInit{MechTypes: []asn1.ObjectIdentifier{mech}, MechTokenBytes: token},
	}
	return tok.Marshal()
}

func BuildResponse(state NegState, mech asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	resp := spnego.NegTokenResp{
		NegState:      asn1.Enumerated(state),
		SupportedMech: mech,
		ResponseToken: token,
	}
	return resp.Marshal()
}

func BuildAcceptIncomplete(mech asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	return BuildResponse(NegStateAcceptIncomplete, mech, token)
}

func BuildAcceptComplete(mech asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	return BuildResponse(NegStateAcceptCompleted, mech, token)
}

func BuildReject() ([]byte, error) {
	return BuildResponse(NegStateReject, nil, nil)
}
