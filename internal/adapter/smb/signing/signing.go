// Package signing computes and verifies per-message signatures.
//
// The algorithm is chosen by the negotiated dialect alone, never by message
// type:
//
//   - SMB1: MD5(session key || message) truncated to 8 bytes, computed with
//     the sequence number written into the SecuritySignature field first.
//   - SMB2/3: HMAC-SHA256 over the message with the 16-byte signature field
//     zeroed, truncated to 16 bytes.
//
// Signing applies only when the context requires it and holds a key. In all
// other cases SignOutbound returns the message untouched and VerifyInbound
// accepts it.
//
// References: [MS-CIFS] 3.1.4.1, [MS-SMB2] 3.1.4.1.
package signing

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
)

var (
	ErrMessageTooShort    = errors.New("message too short to sign")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrUnsupportedDialect = errors.New("no signing algorithm for dialect")
)

// Engine signs and verifies messages against a SecurityContext. It holds no
// state of its own.
type Engine struct{}

// SignOutbound signs msg in place and returns it. For SMB1 it consumes one
// sequence number from ctx and is the only code that advances the counter.
func (Engine) SignOutbound(ctx *session.SecurityContext, msg []byte) ([]byte, error) {
	if ctx == nil || !ctx.ShouldSign() {
		return msg, nil
	}
	switch dialect.Lookup(ctx.Dialect()).Algorithm {
	case dialect.AlgMD5:
		if len(msg) < smb1HeaderSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(msg))
		}
		err := ctx.Sequenced(func(key []byte, seq uint64) error {
			if len(key) == 0 {
				return session.ErrContextDestroyed
			}
			signSMB1(key, seq, msg)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return msg, nil
	case dialect.AlgHMACSHA256:
		if len(msg) < smb2HeaderSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(msg))
		}
		err := ctx.Peek(func(key []byte, _ uint64) error {
			if len(key) == 0 {
				return session.ErrContextDestroyed
			}
			signSMB2(key, msg)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, ctx.Dialect())
}

// VerifyInbound checks the signature msg carries. It reports true without
// checking when signing does not apply to ctx. The counter is never
// modified: an SMB1 message is checked against the last sequence number
// SignOutbound issued on ctx, so a message signed and verified on the same
// context round-trips.
func (Engine) VerifyInbound(ctx *session.SecurityContext, msg []byte) (bool, error) {
	return verifyAt(ctx, msg, lastIssued)
}

// Verify wraps VerifyInbound, turning a mismatch into ErrSignatureMismatch.
func (Engine) Verify(ctx *session.SecurityContext, msg []byte) error {
	return mismatch(verifyAt(ctx, msg, lastIssued))
}

// VerifyRequest checks an inbound SMB1 request against the sequence number
// its response will be signed with, the next value on ctx. SMB2/3 requests
// are checked exactly as Verify does. Like VerifyInbound it never moves the
// counter.
func (Engine) VerifyRequest(ctx *session.SecurityContext, msg []byte) error {
	return mismatch(verifyAt(ctx, msg, nextToIssue))
}

func lastIssued(next uint64) uint64 {
	if next == 0 {
		return 0
	}
	return next - 1
}

func nextToIssue(next uint64) uint64 { return next }

func verifyAt(ctx *session.SecurityContext, msg []byte, expected func(next uint64) uint64) (bool, error) {
	if ctx == nil || !ctx.ShouldSign() {
		return true, nil
	}
	var ok bool
	switch dialect.Lookup(ctx.Dialect()).Algorithm {
	case dialect.AlgMD5:
		if len(msg) < smb1HeaderSize {
			return false, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(msg))
		}
		err := ctx.Peek(func(key []byte, next uint64) error {
			if len(key) == 0 {
				return session.ErrContextDestroyed
			}
			ok = verifySMB1(key, expected(next), msg)
			return nil
		})
		return ok, err
	case dialect.AlgHMACSHA256:
		if len(msg) < smb2HeaderSize {
			return false, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(msg))
		}
		err := ctx.Peek(func(key []byte, _ uint64) error {
			if len(key) == 0 {
				return session.ErrContextDestroyed
			}
			ok = verifySMB2(key, msg)
			return nil
		})
		return ok, err
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedDialect, ctx.Dialect())
}

func mismatch(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}
