// Package negotiate implements the server side of the SMB NEGOTIATE
// exchange for both the SMB1 and SMB2/3 framing families.
//
// A Negotiator is owned by one connection. It classifies the first frame by
// its protocol marker, selects a mutual dialect and builds the response.
// Once a concrete dialect is fixed the Negotiator refuses any further
// NEGOTIATE; the SMB1 "SMB 2.???" upgrade is the single exception, since
// it answers with the 0x02FF placeholder and leaves the real choice to the
// client's follow-up SMB2 request.
package negotiate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smb1"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/logger"
)

var (
	// ErrFraming means the frame carried neither protocol marker. No
	// response is sent.
	ErrFraming = errors.New("unrecognized protocol marker")

	// ErrMalformedRequest is a NEGOTIATE that could not be decoded. It is
	// handled like a framing error.
	ErrMalformedRequest = fmt.Errorf("malformed negotiate request: %w", ErrFraming)

	// ErrNoMutualDialect accompanies a Decision holding the negative
	// response. The connection must be closed after sending it.
	ErrNoMutualDialect = errors.New("no mutual dialect")

	// ErrAlreadyNegotiated is a second NEGOTIATE on a connection whose
	// dialect is fixed.
	ErrAlreadyNegotiated = errors.New("connection already negotiated")

	// ErrInvalidTransition is an illegal connection state change.
	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// Legacy NT LM 0.12 limits advertised in the extended response.
const (
	SMB1MaxMpxCount  = 50
	SMB1MaxNumberVcs = 1
	SMB1MaxBuffer    = 16644
	SMB1MaxRaw       = 65536

	DefaultMaxTransferSize = uint32(8 * bytesize.MiB)

	// Every negotiate response grants a single credit.
	negotiateCredits = 1
)

const smb1Capabilities = types.SMB1CapUnicode | types.SMB1CapLargeFiles | types.SMB1CapNTSMBs |
	types.SMB1CapRPCRemoteAPIs | types.SMB1CapNTStatus | types.SMB1CapLevel2Oplocks |
	types.SMB1CapLargeReadX | types.SMB1CapLargeWriteX | types.SMB1CapExtendedSecurity

// ServerIdentity is the immutable per-server data every response echoes.
// One value is shared by all connections of a server.
type ServerIdentity struct {
	GUID            uuid.UUID
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32

	// Clock supplies SystemTime. Defaults to time.Now.
	Clock func() time.Time

	// Rand supplies preauth salts. Defaults to crypto/rand.
	Rand io.Reader
}

// WithDefaults fills zero fields.
func (id ServerIdentity) WithDefaults() ServerIdentity {
	if id.GUID == uuid.Nil {
		id.GUID = uuid.New()
	}
	if id.MaxTransactSize == 0 {
		id.MaxTransactSize = DefaultMaxTransferSize
	}
	if id.MaxReadSize == 0 {
		id.MaxReadSize = DefaultMaxTransferSize
	}
	if id.MaxWriteSize == 0 {
		id.MaxWriteSize = DefaultMaxTransferSize
	}
	if id.Clock == nil {
		id.Clock = time.Now
	}
	if id.Rand == nil {
		id.Rand = rand.Reader
	}
	return id
}

// SecurityBufferSource produces the GSS token embedded in negotiate
// responses.
type SecurityBufferSource interface {
	InitialToken() ([]byte, error)
}

// Decision is the outcome of one NEGOTIATE.
type Decision struct {
	// Response is the complete outbound message, header included.
	Response []byte

	Dialect     dialect.Version
	DialectText string
	Status      types.Status

	// Disconnect asks the connection owner to close after sending Response.
	Disconnect bool

	SecurityMode types.SecurityMode
	Contexts     []types.NegotiateContext

	// Upgrade marks the SMB1 -> SMB2 wildcard answer.
	Upgrade bool

	ClientSecurityMode types.SecurityMode
	ClientCapabilities uint32
	ClientGUID         uuid.UUID
	ClientDialects     []string
	ClientContexts     []types.NegotiateContext
}

// Negotiator runs NEGOTIATE for one connection.
type Negotiator struct {
	id              ServerIdentity
	tokens          SecurityBufferSource
	signingRequired bool

	mu          sync.Mutex
	state       session.ConnState
	dialect     dialect.Version
	dialectText string
	upgraded    bool
	preauth     *session.PreauthIntegrity
}

// New creates a Negotiator. tokens may be nil, in which case responses carry
// an empty security buffer.
func New(id ServerIdentity, tokens SecurityBufferSource, signingRequired bool) *Negotiator {
	return &Negotiator{
		id:              id.WithDefaults(),
		tokens:          tokens,
		signingRequired: signingRequired,
		state:           session.StateUnauthenticated,
	}
}

// State returns the current connection state.
func (n *Negotiator) State() session.ConnState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Dialect returns the negotiated dialect, or dialect.Unknown.
func (n *Negotiator) Dialect() dialect.Version {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dialect
}

// DialectText is the dialect as recorded for diagnostics: "0x311" or
// "NT LM 0.12".
func (n *Negotiator) DialectText() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dialectText
}

// Preauth returns the connection preauth hash chain. Nil unless 3.1.1 was
// negotiated.
func (n *Negotiator) Preauth() *session.PreauthIntegrity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.preauth
}

// Transition moves the connection state forward after negotiation, used by
// SESSION_SETUP and LOGOFF.
func (n *Negotiator) Transition(to session.ConnState) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == session.StateUnauthenticated || !session.CanTransition(n.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.state, to)
	}
	n.state = to
	return nil
}

// Negotiate processes one NEGOTIATE frame. On ErrNoMutualDialect the
// returned Decision holds the negative response to send before closing.
// Any other error means disconnect without a response.
func (n *Negotiator) Negotiate(raw []byte) (*Decision, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != session.StateUnauthenticated {
		return nil, ErrAlreadyNegotiated
	}

	switch {
	case header.IsSMB2(raw):
		return n.negotiateSMB2(raw)
	case header.IsSMB1(raw):
		if n.upgraded {
			return nil, fmt.Errorf("%w: SMB1 negotiate after SMB2 upgrade", ErrAlreadyNegotiated)
		}
		return n.negotiateSMB1(raw)
	default:
		return nil, ErrFraming
	}
}

func (n *Negotiator) securityMode() types.SecurityMode {
	mode := types.NegotiateSigningEnabled
	if n.signingRequired {
		mode |= types.NegotiateSigningRequired
	}
	return mode
}

func (n *Negotiator) securityBuffer() ([]byte, error) {
	if n.tokens == nil {
		return nil, nil
	}
	tok, err := n.tokens.InitialToken()
	if err != nil {
		return nil, fmt.Errorf("building security buffer: %w", err)
	}
	return tok, nil
}

func (n *Negotiator) negotiateSMB2(raw []byte) (*Decision, error) {
	req, err := ParseSMB2Request(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	d := &Decision{
		ClientSecurityMode: req.SecurityMode,
		ClientCapabilities: req.Capabilities,
		ClientGUID:         req.ClientGUID,
		ClientContexts:     req.Contexts,
	}
	for _, v := range req.Dialects {
		d.ClientDialects = append(d.ClientDialects, v.String())
	}

	selected, ok := dialect.SelectSMB2(req.Dialects)
	if !ok {
		// A failed request gets an SMB2 ERROR response ([MS-SMB2] 2.2.2,
		// 3.3.4.4) rather than a NEGOTIATE body; 3.3.5.4 fails the request
		// with STATUS_NOT_SUPPORTED when no dialect matches.
		d.Status = types.StatusNotSupported
		d.Disconnect = true
		d.Response = ErrorResponse(req.Header, types.StatusNotSupported, negotiateCredits)
		logger.Debug("SMB2 negotiate: no mutual dialect", "offered", d.ClientDialects)
		return d, ErrNoMutualDialect
	}

	secBuf, err := n.securityBuffer()
	if err != nil {
		return nil, err
	}

	var contexts []types.NegotiateContext
	if dialect.Lookup(selected).RequiresNegotiateContexts {
		salt := make([]byte, types.PreauthSaltSize)
		if _, err := io.ReadFull(n.id.Rand, salt); err != nil {
			return nil, fmt.Errorf("drawing preauth salt: %w", err)
		}
		contexts = []types.NegotiateContext{
			types.PreauthIntegrityCaps{HashAlgorithms: []uint16{types.HashAlgSHA512}, Salt: salt}.Context(),
			types.EncryptionCaps{Ciphers: []uint16{types.CipherAES128CCM}}.Context(),
		}
	}

	d.Dialect = selected
	d.DialectText = selected.String()
	d.Status = types.StatusSuccess
	d.SecurityMode = n.securityMode()
	d.Contexts = contexts
	d.Response = encodeSMB2Response(header.NewResponse(req.Header, types.StatusSuccess, negotiateCredits), smb2ResponseFields{
		mode:       d.SecurityMode,
		revision:   selected,
		guid:       n.id.GUID,
		maxTrans:   n.id.MaxTransactSize,
		maxRead:    n.id.MaxReadSize,
		maxWrite:   n.id.MaxWriteSize,
		systemTime: n.id.Clock(),
		secBuf:     secBuf,
		contexts:   contexts,
	})

	if selected == dialect.SMB311 {
		n.preauth = &session.PreauthIntegrity{}
		n.preauth.Update(raw)
		n.preauth.Update(d.Response)
	}
	n.dialect = selected
	n.dialectText = d.DialectText
	n.state = session.StateAwaitingSessionSetup
	return d, nil
}

func (n *Negotiator) negotiateSMB1(raw []byte) (*Decision, error) {
	req, err := smb1.ParseNegotiateRequest(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	d := &Decision{ClientDialects: req.Dialects}

	if dialect.HasSMB2Wildcard(req.Dialects) {
		return n.upgrade(d)
	}

	idx, ok := dialect.SelectSMB1(req.Dialects)
	if !ok {
		d.Status = types.StatusNotSupported
		d.Disconnect = true
		d.Response = smb1.NegativeNegotiateResponse(req.Header)
		logger.Debug("SMB1 negotiate: no mutual dialect", "offered", req.Dialects)
		return d, ErrNoMutualDialect
	}

	secBuf, err := n.securityBuffer()
	if err != nil {
		return nil, err
	}

	mode := uint8(types.SMB1SecurityModeUserLevel | types.SMB1SecurityModeSigningEnabled)
	if n.signingRequired {
		mode |= types.SMB1SecurityModeSigningRequired
	}
	now := n.id.Clock()
	resp := &smb1.NegotiateResponse{
		DialectIndex:   uint16(idx),
		SecurityMode:   mode,
		MaxMpxCount:    SMB1MaxMpxCount,
		MaxNumberVcs:   SMB1MaxNumberVcs,
		MaxBufferSize:  SMB1MaxBuffer,
		MaxRawSize:     SMB1MaxRaw,
		Capabilities:   smb1Capabilities,
		SystemTime:     now,
		ServerTimeZone: types.TimeZoneMinutes(now),
		ServerGUID:     n.id.GUID,
		SecurityBlob:   secBuf,
	}

	d.Dialect = dialect.SMB1
	d.DialectText = types.SMB1DialectNTLM012
	d.Status = types.StatusSuccess
	d.SecurityMode = n.securityMode()
	d.Response = resp.Encode(req.Header)

	n.dialect = dialect.SMB1
	n.dialectText = d.DialectText
	n.state = session.StateAwaitingSessionSetup
	return d, nil
}

// upgrade answers an SMB1 negotiate offering "SMB 2.???" with an SMB2
// response carrying revision 0x02FF. State is left unauthenticated.
func (n *Negotiator) upgrade(d *Decision) (*Decision, error) {
	secBuf, err := n.securityBuffer()
	if err != nil {
		return nil, err
	}
	hdr := &header.SMB2Header{
		Command: types.CommandNegotiate,
		Credits: negotiateCredits,
		Flags:   types.FlagServerToRedir,
	}
	d.Dialect = dialect.Wildcard
	d.DialectText = dialect.Wildcard.String()
	d.Status = types.StatusSuccess
	d.SecurityMode = n.securityMode()
	d.Upgrade = true
	d.Response = encodeSMB2Response(hdr, smb2ResponseFields{
		mode:       d.SecurityMode,
		revision:   dialect.Wildcard,
		guid:       n.id.GUID,
		maxTrans:   n.id.MaxTransactSize,
		maxRead:    n.id.MaxReadSize,
		maxWrite:   n.id.MaxWriteSize,
		systemTime: n.id.Clock(),
		secBuf:     secBuf,
	})
	n.upgraded = true
	return d, nil
}

// BuildSMB1Request is the client form of SMB_COM_NEGOTIATE.
func BuildSMB1Request(dialects []string) []byte {
	return smb1.BuildNegotiateRequest(dialects)
}
