package logger

import (
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Field keys shared by every log statement in the server.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyConnectionID = "connection_id"
	KeyClientAddr   = "client"
	KeySessionID    = "session_id"
	KeyMessageID    = "message_id"

	KeyProtocol    = "protocol" // smb1, smb2
	KeyDialect     = "dialect"
	KeyCommand     = "command"
	KeyStatus      = "status"
	KeyState       = "state"
	KeySecurityMod = "security_mode"
	KeyDialects    = "offered_dialects"
	KeyContexts    = "negotiate_contexts"

	KeySigned    = "signed"
	KeySignature = "signature"
	KeySequence  = "sequence"

	KeyMechanism = "mechanism"
	KeyUsername  = "username"
	KeyDomain    = "domain"
	KeyEndpoint  = "endpoint"
	KeyOpnum     = "opnum"

	KeyBytes      = "bytes"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

func ClientAddr(addr string) slog.Attr { return slog.String(KeyClientAddr, addr) }

// SessionID formats the 64-bit session identifier the way Wireshark shows it.
func SessionID(id uint64) slog.Attr {
	return slog.String(KeySessionID, fmt.Sprintf("0x%016x", id))
}

func MessageID(id uint64) slog.Attr { return slog.Uint64(KeyMessageID, id) }

func Protocol(p string) slog.Attr { return slog.String(KeyProtocol, p) }

func Dialect(d fmt.Stringer) slog.Attr { return slog.String(KeyDialect, d.String()) }

func Command(c fmt.Stringer) slog.Attr { return slog.String(KeyCommand, c.String()) }

func Status(s fmt.Stringer) slog.Attr { return slog.String(KeyStatus, s.String()) }

func State(s fmt.Stringer) slog.Attr { return slog.String(KeyState, s.String()) }

func Signed(v bool) slog.Attr { return slog.Bool(KeySigned, v) }

func Signature(sig []byte) slog.Attr { return slog.String(KeySignature, hex.EncodeToString(sig)) }

func Sequence(n uint64) slog.Attr { return slog.Uint64(KeySequence, n) }

func Mechanism(m string) slog.Attr { return slog.String(KeyMechanism, m) }

func Username(u string) slog.Attr { return slog.String(KeyUsername, u) }

func Domain(d string) slog.Attr { return slog.String(KeyDomain, d) }

func Endpoint(e fmt.Stringer) slog.Attr { return slog.String(KeyEndpoint, e.String()) }

func Opnum(n uint16) slog.Attr { return slog.Int(KeyOpnum, int(n)) }

func Bytes(n int) slog.Attr { return slog.Int(KeyBytes, n) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns an error attribute; nil errors produce an empty attribute that
// handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
