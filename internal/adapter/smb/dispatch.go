package smb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/smb1"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// HandlerResult is an alias for the handlers result type.
type HandlerResult = handlers.HandlerResult

// CommandHandler is the signature of a post-negotiate SMB2 command.
type CommandHandler func(h *handlers.Handler, ctx *handlers.SMBHandlerContext, body []byte) (*HandlerResult, error)

// Command metadata
type Command struct {
	Name         string
	Handler      CommandHandler
	NeedsSession bool // Requires an established SessionID
}

// DispatchTable maps SMB2 command codes to handlers. Anything absent is
// answered with STATUS_NOT_SUPPORTED.
var DispatchTable = map[types.Command]*Command{
	types.CommandSessionSetup: {
		Name:    "SESSION_SETUP",
		Handler: (*handlers.Handler).SessionSetup,
	},
	types.CommandLogoff: {
		Name:         "LOGOFF",
		Handler:      (*handlers.Handler).Logoff,
		NeedsSession: true,
	},
	types.CommandEcho: {
		Name:    "ECHO",
		Handler: (*handlers.Handler).Echo,
	},
}

var (
	// ErrProtocolMismatch is an SMB1 frame on an SMB2 connection or the
	// reverse. The connection is dropped.
	ErrProtocolMismatch = errors.New("frame does not match negotiated protocol")

	// ErrSignatureRejected is returned after a request failed signature
	// verification and STATUS_ACCESS_DENIED was sent.
	ErrSignatureRejected = errors.New("request signature rejected")

	// ErrDropConnection is returned when a handler asked to close.
	ErrDropConnection = errors.New("connection dropped by handler")
)

// ProcessFrame handles one inbound SMB message. Any returned error means
// the connection must be closed; a response has already been written when
// the protocol calls for one.
func ProcessFrame(ctx context.Context, ci *ConnInfo, frame []byte) error {
	if ci.State.State() == session.StateUnauthenticated {
		return processNegotiate(ctx, ci, frame)
	}

	smb1Conn := ci.State.Dialect() == dialect.SMB1
	switch {
	case header.IsSMB2(frame) && !smb1Conn:
		return ProcessSMB2(ctx, ci, frame)
	case header.IsSMB1(frame) && smb1Conn:
		return processSMB1(ctx, ci, frame)
	case header.IsSMB1(frame), header.IsSMB2(frame):
		return fmt.Errorf("%w: negotiated %s", ErrProtocolMismatch, ci.State.DialectText())
	}
	return negotiate.ErrFraming
}

func processNegotiate(ctx context.Context, ci *ConnInfo, frame []byte) error {
	start := time.Now()
	ctx, span := telemetry.StartSMBSpan(ctx, "NEGOTIATE", ci.ClientAddr())
	defer span.End()
	ctx = withSpanFields(ctx, "NEGOTIATE")

	d, err := ci.State.Negotiate(frame)
	recordNegotiate(ci.Metrics, d, err, time.Since(start))

	if d != nil && len(d.Response) > 0 {
		if werr := WriteNetBIOSFrame(ci.Conn, ci.WriteMu, ci.WriteTimeout, d.Response); werr != nil {
			return werr
		}
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.InfoCtx(ctx, "SMB negotiate failed", logger.Err(err))
		return err
	}

	telemetry.SetAttributes(ctx, telemetry.SMBDialect(d.DialectText), telemetry.SMBUpgrade(d.Upgrade))
	if d.Upgrade {
		telemetry.AddEvent(ctx, "negotiate.upgrade")
		logger.DebugCtx(ctx, "SMB1 negotiate upgraded to SMB2")
		return nil
	}

	sec := ci.State.Security()
	telemetry.SetAttributes(ctx, telemetry.SMBSigned(sec.SigningRequired()))
	logger.InfoCtx(ctx, "SMB dialect negotiated",
		logger.Dialect(d.Dialect),
		"signing_required", sec.SigningRequired(),
		"client_security_mode", d.ClientSecurityMode.String())
	return nil
}

func recordNegotiate(m metrics.SMBMetrics, d *negotiate.Decision, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	var outcome, text string
	switch {
	case errors.Is(err, negotiate.ErrNoMutualDialect):
		outcome = metrics.OutcomeNoDialect
	case errors.Is(err, negotiate.ErrFraming):
		outcome = metrics.OutcomeMalformed
	case err != nil:
		outcome = metrics.OutcomeFailure
	case d.Upgrade:
		outcome, text = metrics.OutcomeUpgrade, d.DialectText
	default:
		outcome, text = metrics.OutcomeSuccess, d.DialectText
	}
	m.RecordNegotiate(text, outcome, elapsed)
}

// processSMB1 answers any SMB1 request after "NT LM 0.12" was negotiated.
// Only NEGOTIATE is implemented for SMB1; the rest get STATUS_NOT_SUPPORTED.
func processSMB1(_ context.Context, ci *ConnInfo, frame []byte) error {
	req, err := smb1.ParseHeader(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", negotiate.ErrFraming, err)
	}
	sec := ci.State.Security()
	if err := ci.Signer.VerifyRequest(sec, frame); err != nil {
		recordSigningFailure(ci, fmt.Sprintf("SMB1_0x%02X", req.Command), err)
		return fmt.Errorf("%w: %v", ErrSignatureRejected, err)
	}

	status := types.StatusNotSupported
	if req.Command == types.SMB1CommandNegotiate {
		// A second NEGOTIATE is a protocol violation.
		status = types.StatusInvalidParameter
	}
	resp, err := ci.Signer.SignOutbound(sec, smb1.ErrorResponse(req, status))
	if err != nil {
		return fmt.Errorf("sign SMB1 response: %w", err)
	}
	logger.Debug("SMB1 command not supported", "command", fmt.Sprintf("0x%02X", req.Command), logger.ClientAddr(ci.ClientAddr()))
	return WriteNetBIOSFrame(ci.Conn, ci.WriteMu, ci.WriteTimeout, resp)
}

func recordSigningFailure(ci *ConnInfo, command string, err error) {
	logger.Warn("SMB request signature rejected",
		"command", command,
		logger.ClientAddr(ci.ClientAddr()),
		logger.Err(err))
	if ci.Metrics != nil {
		ci.Metrics.RecordSigningFailure(command)
	}
}

// dispatchCommand runs one SMB2 command through the table. A non-nil error
// is a handler failure the connection owner must act on.
func dispatchCommand(ctx context.Context, ci *ConnInfo, hdr *header.SMB2Header, body []byte) (*HandlerResult, uint64, error) {
	if hdr.Command == types.CommandNegotiate {
		return nil, 0, negotiate.ErrAlreadyNegotiated
	}

	cmd, ok := DispatchTable[hdr.Command]
	if !ok {
		logger.Debug("Unsupported SMB2 command", logger.Command(hdr.Command))
		return handlers.NewErrorResult(types.StatusNotSupported), hdr.SessionID, nil
	}

	if cmd.NeedsSession {
		if _, ok := ci.Handler.GetSession(hdr.SessionID); !ok {
			return handlers.NewErrorResult(types.StatusUserSessionDeleted), hdr.SessionID, nil
		}
	}

	start := time.Now()
	ctx, span := telemetry.StartSMBSpan(ctx, cmd.Name, ci.ClientAddr(),
		telemetry.SMBMessageID(hdr.MessageID),
		telemetry.SMBSessionID(hdr.SessionID))
	defer span.End()
	ctx = withSpanFields(ctx, cmd.Name)

	hctx := handlers.NewSMBHandlerContext(ctx, ci.ClientAddr(), hdr.SessionID, hdr.MessageID, ci.State)
	result, err := cmd.Handler(ci.Handler, hctx, body)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, 0, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	telemetry.SetAttributes(ctx, telemetry.SMBStatus(result.Status.String()))
	if hdr.Command == types.CommandSessionSetup && result.Status == types.StatusSuccess {
		annotateSession(ctx, ci, hctx.SessionID)
	}
	if ci.Metrics != nil {
		ci.Metrics.RecordRequest(cmd.Name, result.Status.String(), time.Since(start))
	}
	trackSessionLifecycle(ci, hdr.Command, hctx.SessionID, result.Status)
	return result, hctx.SessionID, nil
}

// trackSessionLifecycle keeps the owning connection's session list in sync
// so sessions are removed when it closes.
func trackSessionLifecycle(ci *ConnInfo, command types.Command, sessionID uint64, status types.Status) {
	if sessionID == 0 {
		return
	}
	switch command {
	case types.CommandSessionSetup:
		if ci.Metrics != nil {
			ci.Metrics.RecordSessionSetup(sessionMechanism(ci, sessionID), sessionSetupOutcome(status))
		}
		if status == types.StatusSuccess && ci.SessionTracker != nil {
			ci.SessionTracker.TrackSession(sessionID)
		}
	case types.CommandLogoff:
		if status == types.StatusSuccess && ci.SessionTracker != nil {
			ci.SessionTracker.UntrackSession(sessionID)
		}
	default:
		return
	}
	if ci.Metrics != nil {
		ci.Metrics.SetActiveSessions(ci.Handler.SessionManager.Count())
	}
}

// withSpanFields copies the active trace and command into the connection's
// log context so log lines can be joined with traces.
func withSpanFields(ctx context.Context, command string) context.Context {
	lc := logger.FromContext(ctx)
	if lc == nil {
		return ctx
	}
	return logger.WithContext(ctx, lc.WithCommand(command).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
}

func annotateSession(ctx context.Context, ci *ConnInfo, sessionID uint64) {
	s, ok := ci.Handler.GetSession(sessionID)
	if !ok {
		return
	}
	telemetry.AddEvent(ctx, "session.established",
		telemetry.AuthMethod(s.Mechanism),
		telemetry.Username(s.Username),
		telemetry.Domain(s.Domain))
}

func sessionMechanism(ci *ConnInfo, sessionID uint64) string {
	if s, ok := ci.Handler.GetSession(sessionID); ok {
		return s.Mechanism
	}
	return ""
}

func sessionSetupOutcome(status types.Status) string {
	switch status {
	case types.StatusSuccess:
		return metrics.OutcomeSuccess
	case types.StatusMoreProcessingRequired:
		return metrics.OutcomeMoreNeeded
	}
	return metrics.OutcomeFailure
}

// verifyRequest enforces inbound signing on a live security context. When
// signing applies, unsigned and badly signed requests are both rejected.
func verifyRequest(ci *ConnInfo, hdr *header.SMB2Header, raw []byte) error {
	sec := ci.State.Security()
	if sec == nil || !sec.ShouldSign() {
		return nil
	}
	if !hdr.IsSigned() {
		return errors.New("unsigned request on signed session")
	}
	return ci.Signer.VerifyRequest(sec, raw)
}
