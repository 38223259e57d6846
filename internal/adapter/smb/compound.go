package smb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
)

// compoundAlignment is the boundary every chained command starts on
// [MS-SMB2] 3.2.4.1.4.
const compoundAlignment = 8

const nextCommandOffset = 20

var ErrBadNextCommand = errors.New("invalid NextCommand offset")

// CompoundCommand is one message of a (possibly single-element) compound
// request.
type CompoundCommand struct {
	Header *header.SMB2Header

	// Raw is the command's own bytes, from its header up to NextCommand or
	// the end of the frame. Signatures cover exactly these bytes.
	Raw  []byte
	Body []byte
}

// ParseCompoundCommand splits the next command off data.
func ParseCompoundCommand(data []byte) (*CompoundCommand, []byte, error) {
	hdr, err := header.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse SMB2 header: %w", err)
	}

	end := len(data)
	if next := int(hdr.NextCommand); next != 0 {
		if next < header.HeaderSize || next%compoundAlignment != 0 || next >= len(data) {
			return nil, nil, fmt.Errorf("%w: %d in %d bytes", ErrBadNextCommand, next, len(data))
		}
		end = next
	}

	cmd := &CompoundCommand{
		Header: hdr,
		Raw:    data[:end],
		Body:   data[header.HeaderSize:end],
	}
	return cmd, data[end:], nil
}

// ProcessSMB2 runs every command in an SMB2 frame and writes the chained
// responses as one frame. Each response is padded, linked and signed on its
// own bytes; AfterSend callbacks run once the frame is on the wire.
func ProcessSMB2(ctx context.Context, ci *ConnInfo, frame []byte) error {
	var (
		responses     [][]byte
		afterSend     []func()
		drop          bool
		lastSessionID uint64
		fatal         error
	)

	remaining := frame
	for len(remaining) > 0 {
		cmd, rest, err := ParseCompoundCommand(remaining)
		if err != nil {
			if len(responses) == 0 {
				return fmt.Errorf("malformed SMB2 request: %w", err)
			}
			logger.Debug("Dropping unparsable compound tail", logger.Err(err))
			break
		}
		remaining = rest
		hdr := cmd.Header

		if hdr.Flags&types.FlagRelatedOps != 0 && len(responses) > 0 {
			inheritSessionID(hdr, lastSessionID)
		}

		logger.Debug("SMB2 request",
			logger.Command(hdr.Command),
			logger.MessageID(hdr.MessageID),
			logger.SessionID(hdr.SessionID),
			logger.Signed(hdr.IsSigned()))

		if err := verifyRequest(ci, hdr, cmd.Raw); err != nil {
			recordSigningFailure(ci, hdr.Command.String(), err)
			responses = append(responses, buildResponse(ci, hdr, hdr.SessionID, handlers.NewErrorResult(types.StatusAccessDenied)))
			fatal = fmt.Errorf("%w: %v", ErrSignatureRejected, err)
			break
		}

		RunBeforeHooks(ci, hdr.Command, cmd.Raw)

		result, sessionID, err := dispatchCommand(ctx, ci, hdr, cmd.Body)
		if err != nil {
			return err
		}
		lastSessionID = sessionID

		responses = append(responses, buildResponse(ci, hdr, sessionID, result))
		if result.AfterSend != nil {
			afterSend = append(afterSend, result.AfterSend)
		}
		drop = drop || result.DropConnection
	}

	out, err := chainAndSign(ci, responses)
	if err != nil {
		return err
	}
	if err := WriteNetBIOSFrame(ci.Conn, ci.WriteMu, ci.WriteTimeout, out); err != nil {
		return err
	}
	for _, fn := range afterSend {
		fn()
	}

	switch {
	case fatal != nil:
		return fatal
	case drop:
		return ErrDropConnection
	}
	return nil
}

// inheritSessionID applies [MS-SMB2] 3.3.5.2.7.2: related operations
// take the previous command's session.
func inheritSessionID(hdr *header.SMB2Header, last uint64) {
	if hdr.SessionID == 0 || hdr.SessionID == ^uint64(0) {
		hdr.SessionID = last
	}
}

// buildResponse encodes header and body for one command, unsigned and
// unlinked.
func buildResponse(ci *ConnInfo, req *header.SMB2Header, sessionID uint64, result *HandlerResult) []byte {
	credits := ci.Handler.SessionManager.GrantCredits(req.Credits)
	hdr := header.NewResponse(req, result.Status, credits)
	hdr.SessionID = sessionID

	body := result.Data
	if body == nil {
		body = handlers.MakeErrorBody()
	}
	msg := hdr.Encode(make([]byte, 0, header.HeaderSize+len(body)+compoundAlignment))
	return append(msg, body...)
}

// chainAndSign links responses through NextCommand, pads all but the last
// to 8 bytes, signs each and runs the response hooks.
func chainAndSign(ci *ConnInfo, responses [][]byte) ([]byte, error) {
	sec := ci.State.Security()
	var out []byte
	for i, resp := range responses {
		if i < len(responses)-1 {
			for len(resp)%compoundAlignment != 0 {
				resp = append(resp, 0)
			}
			binary.LittleEndian.PutUint32(resp[nextCommandOffset:], uint32(len(resp)))
		}
		signed, err := ci.Signer.SignOutbound(sec, resp)
		if err != nil {
			return nil, fmt.Errorf("sign response: %w", err)
		}
		RunAfterHooks(ci, types.Command(binary.LittleEndian.Uint16(signed[12:14])), signed)
		out = append(out, signed...)
	}
	return out, nil
}
