// Package client is a minimal SMB client: it negotiates, optionally runs
// an NTLM session setup, and can ECHO and LOGOFF. It exists to probe
// servers and to drive end-to-end tests, not to access files.
package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/google/uuid"

	smb "github.com/marmos91/dittosmb/internal/adapter/smb"
	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smb1"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
)

const maxResponseSize = 1 << 20

var (
	ErrNotNegotiated = errors.New("client: not negotiated")
	ErrNoSession     = errors.New("client: no session")
)

// StatusError is a non-success NTSTATUS in a response.
type StatusError struct {
	Command types.Command
	Status  types.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Status)
}

// Credentials for NTLM. Leaving User and Password empty logs on
// anonymously.
type Credentials struct {
	User        string
	Password    string
	Domain      string
	Workstation string
}

// Dialer holds the options for Dial.
type Dialer struct {
	// Dialects defaults to every SMB2 dialect the server side knows.
	Dialects []dialect.Version

	// SecurityMode defaults to signing enabled.
	SecurityMode types.SecurityMode

	// ClientGUID defaults to a random GUID.
	ClientGUID uuid.UUID

	// Timeout bounds each request/response round trip. 0 means 30s.
	Timeout time.Duration
}

func (d *Dialer) withDefaults() Dialer {
	out := *d
	if len(out.Dialects) == 0 {
		out.Dialects = dialect.Preference()
	}
	if out.SecurityMode == 0 {
		out.SecurityMode = types.NegotiateSigningEnabled
	}
	if out.ClientGUID == uuid.Nil {
		out.ClientGUID = uuid.New()
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// Client is one SMB2 connection.
type Client struct {
	conn    net.Conn
	timeout time.Duration
	writeMu smb.LockedWriter

	mu        sync.Mutex
	messageID uint64
	sessionID uint64

	// Negotiate is the server's NEGOTIATE response.
	Negotiate *negotiate.SMB2Response

	// SessionFlags from the final SESSION_SETUP response.
	SessionFlags uint16
}

// Dial connects to addr and negotiates SMB2.
func (d *Dialer) Dial(ctx context.Context, addr string) (*Client, error) {
	opts := d.withDefaults()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, timeout: opts.Timeout}
	if err := c.negotiate(ctx, opts); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) negotiate(ctx context.Context, opts Dialer) error {
	var contexts []types.NegotiateContext
	for _, v := range opts.Dialects {
		if v == dialect.SMB311 {
			contexts = defaultContexts()
			break
		}
	}

	req := negotiate.BuildSMB2Request(opts.Dialects, opts.ClientGUID, opts.SecurityMode, contexts)
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}
	c.messageID = 1

	r, err := negotiate.ParseSMB2Response(resp)
	if err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}
	if r.Header.Status != types.StatusSuccess {
		return &StatusError{Command: types.CommandNegotiate, Status: r.Header.Status}
	}
	c.Negotiate = r
	logger.Debug("Client negotiated", logger.Dialect(r.DialectRevision), "security_mode", r.SecurityMode.String())
	return nil
}

func defaultContexts() []types.NegotiateContext {
	salt := make([]byte, 32)
	_, _ = rand.Read(salt)
	return []types.NegotiateContext{
		types.PreauthIntegrityCaps{
			HashAlgorithms: []uint16{types.HashAlgSHA512},
			Salt:           salt,
		}.Context(),
		types.EncryptionCaps{Ciphers: []uint16{types.CipherAES128CCM}}.Context(),
	}
}

// SessionSetup authenticates with NTLM wrapped in SPNEGO. The server may
// complete the exchange as guest.
func (c *Client) SessionSetup(ctx context.Context, creds Credentials) error {
	if c.Negotiate == nil {
		return ErrNotNegotiated
	}

	negMsg, err := ntlmssp.NewNegotiateMessage(creds.Domain, creds.Workstation)
	if err != nil {
		return fmt.Errorf("ntlm negotiate: %w", err)
	}
	token, err := auth.BuildInitWithToken(auth.OIDNTLMSSP, negMsg)
	if err != nil {
		return err
	}

	hdr, body, err := c.sessionSetupLeg(ctx, token)
	if err != nil {
		return err
	}
	if hdr.Status != types.StatusMoreProcessingRequired {
		return c.finishSessionSetup(hdr, body)
	}

	resp, err := handlers.DecodeSessionSetupResponse(body)
	if err != nil {
		return err
	}
	parsed, err := auth.ParseToken(resp.SecurityBuffer)
	if err != nil {
		return fmt.Errorf("server challenge: %w", err)
	}
	authMsg, err := authenticateMessage(parsed.MechToken, creds)
	if err != nil {
		return fmt.Errorf("ntlm authenticate: %w", err)
	}
	token, err = auth.BuildResponse(auth.NegStateAcceptIncomplete, nil, authMsg)
	if err != nil {
		return err
	}

	hdr, body, err = c.sessionSetupLeg(ctx, token)
	if err != nil {
		return err
	}
	return c.finishSessionSetup(hdr, body)
}

func authenticateMessage(challenge []byte, creds Credentials) ([]byte, error) {
	if creds.User == "" && creds.Password == "" {
		return anonymousAuthenticate(challenge)
	}
	return ntlmssp.ProcessChallenge(challenge, creds.User, creds.Password, creds.Domain != "")
}

func (c *Client) sessionSetupLeg(ctx context.Context, token []byte) (*header.SMB2Header, []byte, error) {
	hdr, body, err := c.call(ctx, types.CommandSessionSetup, handlers.EncodeSessionSetupRequest(types.NegotiateSigningEnabled, token))
	if err != nil {
		return nil, nil, err
	}
	if hdr.Status == types.StatusMoreProcessingRequired {
		c.mu.Lock()
		c.sessionID = hdr.SessionID
		c.mu.Unlock()
	}
	return hdr, body, nil
}

func (c *Client) finishSessionSetup(hdr *header.SMB2Header, body []byte) error {
	if hdr.Status != types.StatusSuccess {
		return &StatusError{Command: types.CommandSessionSetup, Status: hdr.Status}
	}
	resp, err := handlers.DecodeSessionSetupResponse(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = hdr.SessionID
	c.SessionFlags = resp.SessionFlags
	c.mu.Unlock()
	return nil
}

// SessionID is the established or pending session, 0 before setup.
func (c *Client) SessionID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Guest reports whether the server logged the session on as guest.
func (c *Client) Guest() bool {
	return c.SessionFlags&types.SessionFlagIsGuest != 0
}

// Echo sends an ECHO and waits for the reply.
func (c *Client) Echo(ctx context.Context) error {
	return c.simple(ctx, types.CommandEcho, handlers.EncodeEchoRequest())
}

// Logoff ends the session. The connection stays open.
func (c *Client) Logoff(ctx context.Context) error {
	if c.SessionID() == 0 {
		return ErrNoSession
	}
	if err := c.simple(ctx, types.CommandLogoff, handlers.EncodeLogoffRequest()); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = 0
	c.mu.Unlock()
	return nil
}

func (c *Client) simple(ctx context.Context, cmd types.Command, body []byte) error {
	hdr, _, err := c.call(ctx, cmd, body)
	if err != nil {
		return err
	}
	if hdr.Status != types.StatusSuccess {
		return &StatusError{Command: cmd, Status: hdr.Status}
	}
	return nil
}

// call sends one SMB2 request and returns the response header and body.
func (c *Client) call(ctx context.Context, cmd types.Command, body []byte) (*header.SMB2Header, []byte, error) {
	c.mu.Lock()
	hdr := &header.SMB2Header{
		Command:   cmd,
		Credits:   1,
		MessageID: c.messageID,
		SessionID: c.sessionID,
	}
	c.messageID++
	c.mu.Unlock()

	resp, err := c.exchange(ctx, append(hdr.Bytes(), body...))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cmd, err)
	}
	rh, err := header.Parse(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("%s response: %w", cmd, err)
	}
	return rh, resp[header.HeaderSize:], nil
}

func (c *Client) exchange(ctx context.Context, msg []byte) ([]byte, error) {
	if err := smb.WriteNetBIOSFrame(c.conn, &c.writeMu, c.timeout, msg); err != nil {
		return nil, err
	}
	return smb.ReadFrame(ctx, c.conn, maxResponseSize, c.timeout)
}

// Close closes the connection without logging off.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SMB1Result is what a server answered to an SMB1 NEGOTIATE.
type SMB1Result struct {
	// Upgraded is set when the server answered in SMB2 format.
	Upgraded bool

	// Revision is the SMB2 dialect revision of an upgrade response.
	Revision dialect.Version

	// DialectIndex indexes the offered list; 0xFFFF means none matched.
	DialectIndex uint16
	SMB1         *smb1.NegotiateResponse
}

// ProbeSMB1 sends a single SMB1 NEGOTIATE offering dialects and reports
// the answer. The connection is closed afterwards.
func (d *Dialer) ProbeSMB1(ctx context.Context, addr string, dialects []string) (*SMB1Result, error) {
	opts := d.withDefaults()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	c := &Client{conn: conn, timeout: opts.Timeout}
	resp, err := c.exchange(ctx, negotiate.BuildSMB1Request(dialects))
	if err != nil {
		return nil, err
	}

	if header.IsSMB2(resp) {
		r, err := negotiate.ParseSMB2Response(resp)
		if err != nil {
			return nil, err
		}
		return &SMB1Result{Upgraded: true, Revision: r.DialectRevision}, nil
	}

	_, r, err := smb1.ParseNegotiateResponse(resp)
	if err != nil {
		return nil, err
	}
	return &SMB1Result{DialectIndex: r.DialectIndex, SMB1: r}, nil
}
