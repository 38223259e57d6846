package smb

import (
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// DispatchHook runs before or after a command handler with the raw SMB2
// message (header + body) of the request or response.
//
// Hooks carry cross-cutting work that needs wire bytes, such as the 3.1.1
// preauth integrity hash chain.
type DispatchHook func(ci *ConnInfo, command types.Command, rawMessage []byte)

var (
	beforeHooks = map[types.Command][]DispatchHook{}
	afterHooks  = map[types.Command][]DispatchHook{}
)

func init() {
	// [MS-SMB2] 3.3.5.5: a session's chain starts from the connection
	// chain and covers every SESSION_SETUP request and every SESSION_SETUP
	// response except the final successful one. NEGOTIATE is folded into
	// the connection chain by the negotiator itself.
	RegisterBeforeHook(types.CommandSessionSetup, preauthRequestHook)
	RegisterAfterHook(types.CommandSessionSetup, preauthResponseHook)
}

// RegisterBeforeHook appends a hook run before the handler for cmd.
func RegisterBeforeHook(cmd types.Command, hook DispatchHook) {
	beforeHooks[cmd] = append(beforeHooks[cmd], hook)
}

// RegisterAfterHook appends a hook run once the response for cmd is built
// and signed.
func RegisterAfterHook(cmd types.Command, hook DispatchHook) {
	afterHooks[cmd] = append(afterHooks[cmd], hook)
}

func RunBeforeHooks(ci *ConnInfo, cmd types.Command, rawMessage []byte) {
	for _, hook := range beforeHooks[cmd] {
		hook(ci, cmd, rawMessage)
	}
}

func RunAfterHooks(ci *ConnInfo, cmd types.Command, rawMessage []byte) {
	for _, hook := range afterHooks[cmd] {
		hook(ci, cmd, rawMessage)
	}
}

func preauthRequestHook(ci *ConnInfo, _ types.Command, rawMessage []byte) {
	hdr, err := header.Parse(rawMessage)
	if err != nil {
		return
	}
	p := ci.State.SessionPreauth()
	if hdr.SessionID == 0 {
		p = ci.State.forkSessionPreauth()
	}
	if p == nil {
		return
	}
	p.Update(rawMessage)
	logger.Debug("Preauth hash updated with SESSION_SETUP request", logger.Bytes(len(rawMessage)))
}

func preauthResponseHook(ci *ConnInfo, _ types.Command, rawMessage []byte) {
	p := ci.State.SessionPreauth()
	if p == nil || len(rawMessage) < 12 {
		return
	}
	if types.Status(binary.LittleEndian.Uint32(rawMessage[8:12])) != types.StatusMoreProcessingRequired {
		return
	}
	p.Update(rawMessage)
	logger.Debug("Preauth hash updated with SESSION_SETUP response", logger.Bytes(len(rawMessage)))
}
