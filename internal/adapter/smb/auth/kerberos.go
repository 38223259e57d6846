package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/marmos91/dittosmb/internal/logger"
)

const MechanismKerberos = "kerberos"

// KerberosAuthenticator verifies AP-REQs against a service keytab. It is
// single round: the first token either completes or fails.
type KerberosAuthenticator struct {
	keytab       *keytab.Keytab
	principal    string
	maxClockSkew time.Duration
}

var _ Authenticator = (*KerberosAuthenticator)(nil)

// NewKerberosAuthenticator loads the keytab at path. principal is the SPN
// the keytab holds, e.g. "cifs/fileserver.example.com".
func NewKerberosAuthenticator(path, principal string, maxClockSkew time.Duration) (*KerberosAuthenticator, error) {
	kt, err := keytab.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load keytab %s: %w", path, err)
	}
	return NewKerberosAuthenticatorFromKeytab(kt, principal, maxClockSkew), nil
}

func NewKerberosAuthenticatorFromKeytab(kt *keytab.Keytab, principal string, maxClockSkew time.Duration) *KerberosAuthenticator {
	if maxClockSkew <= 0 {
		maxClockSkew = 5 * time.Minute
	}
	return &KerberosAuthenticator{keytab: kt, principal: principal, maxClockSkew: maxClockSkew}
}

func (k *KerberosAuthenticator) Accept(ctx context.Context, token []byte) (*Result, error) {
	parsed, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	return k.acceptParsed(ctx, parsed)
}

func (k *KerberosAuthenticator) acceptParsed(ctx context.Context, parsed *ParsedToken) (*Result, error) {
	apReq, err := unmarshalAPReq(parsed.MechToken)
	if err != nil {
		logger.DebugCtx(ctx, "Kerberos AP-REQ decode failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrLogonFailure, err)
	}

	settings := service.NewSettings(k.keytab,
		service.MaxClockSkew(k.maxClockSkew),
		service.DecodePAC(false),
		service.KeytabPrincipal(k.principal),
	)
	ok, creds, err := service.VerifyAPREQ(apReq, settings)
	if err != nil || !ok {
		logger.InfoCtx(ctx, "Kerberos AP-REQ rejected", logger.Err(err))
		return nil, fmt.Errorf("%w: AP-REQ verification failed", ErrLogonFailure)
	}

	// VerifyAPREQ decrypts ticket and authenticator in place.
	key := apReq.Authenticator.SubKey.KeyValue
	if len(key) == 0 {
		key = apReq.Ticket.DecryptedEncPart.Key.KeyValue
	}

	username := creds.CName().PrincipalNameString()
	if i := strings.Index(username, "/"); i >= 0 {
		username = username[:i]
	}

	resp, err := BuildAcceptComplete(OIDKerberosV5, nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		Token:      resp,
		Done:       true,
		SessionKey: append([]byte(nil), key...),
		Identity:   Identity{Username: username, Domain: creds.Domain(), Mechanism: MechanismKerberos},
	}, nil
}

// unmarshalAPReq accepts a GSS-API KRB5 token or a bare AP-REQ.
func unmarshalAPReq(b []byte) (*messages.APReq, error) {
	var tok spnego.KRB5Token
	if err := tok.Unmarshal(b); err == nil && tok.IsAPReq() {
		return &tok.APReq, nil
	}
	var apReq messages.APReq
	if err := apReq.Unmarshal(b); err != nil {
		return nil, err
	}
	return &apReq, nil
}
