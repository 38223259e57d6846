package rpc

import (
	"fmt"

	"github.com/google/uuid"
)

// Call is one decoded request stub. Concrete types are the variants below;
// callers switch on them.
type Call interface {
	Endpoint() Endpoint
	Opnum() uint16
	Name() string
}

// ContextHandleSize is an NDR policy handle.
const ContextHandleSize = 20

// Operation numbers with typed decoders.
const (
	OpWinregOpenClassesRoot    uint16 = 0
	OpWinregOpenCurrentUser    uint16 = 1
	OpWinregOpenLocalMachine   uint16 = 2
	OpWinregOpenUsers          uint16 = 4
	OpWinregCloseKey           uint16 = 5
	OpNetlogonReqChallenge     uint16 = 4
	OpSrvsvcNetrShareEnum      uint16 = 15
	OpSvcctlCloseServiceHandle uint16 = 0
	OpSvcctlOpenSCManagerW     uint16 = 15
	OpSamrConnect              uint16 = 0
	OpSamrCloseHandle          uint16 = 1
	OpWkssvcNetrWkstaGetInfo   uint16 = 0
	OpEpmEptMap                uint16 = 3
	OpDrsuapiBind              uint16 = 0
	OpDrsuapiUnbind            uint16 = 1
)

type key struct {
	ep Endpoint
	op uint16
}

type decoder func(op uint16, r ndrReader) Call

var decoders = map[key]decoder{
	{EndpointWinreg, OpWinregOpenClassesRoot}:    decodeOpenRootKey,
	{EndpointWinreg, OpWinregOpenCurrentUser}:    decodeOpenRootKey,
	{EndpointWinreg, OpWinregOpenLocalMachine}:   decodeOpenRootKey,
	{EndpointWinreg, OpWinregOpenUsers}:          decodeOpenRootKey,
	{EndpointWinreg, OpWinregCloseKey}:           closer(EndpointWinreg, "BaseRegCloseKey"),
	{EndpointNetlogon, OpNetlogonReqChallenge}:   decodeReqChallenge,
	{EndpointSrvsvc, OpSrvsvcNetrShareEnum}:      decodeShareEnum,
	{EndpointSvcctl, OpSvcctlCloseServiceHandle}: closer(EndpointSvcctl, "RCloseServiceHandle"),
	{EndpointSvcctl, OpSvcctlOpenSCManagerW}:     decodeOpenSCManager,
	{EndpointSamr, OpSamrConnect}:                decodeSamrConnect,
	{EndpointSamr, OpSamrCloseHandle}:            closer(EndpointSamr, "SamrCloseHandle"),
	{EndpointWkssvc, OpWkssvcNetrWkstaGetInfo}:   decodeWkstaGetInfo,
	{EndpointEpm, OpEpmEptMap}:                   decodeEptMap,
	{EndpointDrsuapi, OpDrsuapiBind}:             decodeDsBind,
	{EndpointDrsuapi, OpDrsuapiUnbind}:           closer(EndpointDrsuapi, "IDL_DRSUnbind"),
}

// Decode resolves (ep, opnum) to a typed call. Unknown pairs and sealed
// stubs yield an OpaqueCall. A known pair whose stub does not parse is an
// error.
func Decode(ep Endpoint, opnum uint16, stub []byte) (Call, error) {
	if ep == EndpointEncrypted {
		return &OpaqueCall{Ep: ep, Op: opnum, Stub: stub}, nil
	}
	dec, ok := decoders[key{ep, opnum}]
	if !ok {
		return &OpaqueCall{Ep: ep, Op: opnum, Stub: stub}, nil
	}
	r := newNDRReader(stub)
	call := dec(opnum, r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decoding %s opnum %d: %w", ep, opnum, err)
	}
	return call, nil
}

// OpaqueCall carries a stub with no typed decoder.
type OpaqueCall struct {
	Ep   Endpoint
	Op   uint16
	Stub []byte
}

func (c *OpaqueCall) Endpoint() Endpoint { return c.Ep }
func (c *OpaqueCall) Opnum() uint16      { return c.Op }
func (c *OpaqueCall) Name() string       { return fmt.Sprintf("%s#%d", c.Ep, c.Op) }

// CloseHandleCall is any close/unbind operation taking only a policy
// handle.
type CloseHandleCall struct {
	Ep     Endpoint
	Op     uint16
	Method string
	Handle [ContextHandleSize]byte
}

func (c *CloseHandleCall) Endpoint() Endpoint { return c.Ep }
func (c *CloseHandleCall) Opnum() uint16      { return c.Op }
func (c *CloseHandleCall) Name() string       { return c.Method }

func (c *CloseHandleCall) Encode() []byte {
	w := newNDRWriter()
	w.WriteBytes(c.Handle[:])
	return w.Bytes()
}

func closer(ep Endpoint, method string) decoder {
	return func(op uint16, r ndrReader) Call {
		c := &CloseHandleCall{Ep: ep, Op: op, Method: method}
		copy(c.Handle[:], r.ReadBytes(ContextHandleSize))
		return c
	}
}

// OpenRootKeyCall is winreg OpenClassesRoot/OpenCurrentUser/
// OpenLocalMachine/OpenUsers. ServerName is a pointer to a single wchar.
type OpenRootKeyCall struct {
	Op            uint16
	HasServerName bool
	ServerName    uint16
	SamDesired    uint32
}

func (c *OpenRootKeyCall) Endpoint() Endpoint { return EndpointWinreg }
func (c *OpenRootKeyCall) Opnum() uint16      { return c.Op }

func (c *OpenRootKeyCall) Name() string {
	switch c.Op {
	case OpWinregOpenClassesRoot:
		return "OpenClassesRoot"
	case OpWinregOpenCurrentUser:
		return "OpenCurrentUser"
	case OpWinregOpenLocalMachine:
		return "OpenLocalMachine"
	}
	return "OpenUsers"
}

func (c *OpenRootKeyCall) Encode() []byte {
	w := newNDRWriter()
	w.pointer(c.HasServerName)
	if c.HasServerName {
		w.uint16(c.ServerName)
	}
	w.uint32(c.SamDesired)
	return w.Bytes()
}

func decodeOpenRootKey(op uint16, r ndrReader) Call {
	c := &OpenRootKeyCall{Op: op}
	if c.HasServerName = r.pointer(); c.HasServerName {
		c.ServerName = r.uint16()
	}
	c.SamDesired = r.uint32()
	return c
}

// ReqChallengeCall is NetrServerReqChallenge.
type ReqChallengeCall struct {
	PrimaryName     string
	ComputerName    string
	ClientChallenge [8]byte
}

func (c *ReqChallengeCall) Endpoint() Endpoint { return EndpointNetlogon }
func (c *ReqChallengeCall) Opnum() uint16      { return OpNetlogonReqChallenge }
func (c *ReqChallengeCall) Name() string       { return "NetrServerReqChallenge" }

func (c *ReqChallengeCall) Encode() []byte {
	w := newNDRWriter()
	w.uniqueWideString(c.PrimaryName, c.PrimaryName != "")
	w.wideString(c.ComputerName)
	w.WriteBytes(c.ClientChallenge[:])
	return w.Bytes()
}

func decodeReqChallenge(_ uint16, r ndrReader) Call {
	c := &ReqChallengeCall{}
	c.PrimaryName, _ = r.uniqueWideString()
	c.ComputerName = r.wideString()
	copy(c.ClientChallenge[:], r.ReadBytes(8))
	return c
}

// ShareEnumCall is NetrShareEnum; only the leading fields are decoded.
type ShareEnumCall struct {
	ServerName string
	Level      uint32
}

func (c *ShareEnumCall) Endpoint() Endpoint { return EndpointSrvsvc }
func (c *ShareEnumCall) Opnum() uint16      { return OpSrvsvcNetrShareEnum }
func (c *ShareEnumCall) Name() string       { return "NetrShareEnum" }

func (c *ShareEnumCall) Encode() []byte {
	w := newNDRWriter()
	w.uniqueWideString(c.ServerName, c.ServerName != "")
	w.uint32(c.Level)
	return w.Bytes()
}

func decodeShareEnum(_ uint16, r ndrReader) Call {
	c := &ShareEnumCall{}
	c.ServerName, _ = r.uniqueWideString()
	c.Level = r.uint32()
	return c
}

// OpenSCManagerCall is ROpenSCManagerW.
type OpenSCManagerCall struct {
	MachineName   string
	DatabaseName  string
	DesiredAccess uint32
}

func (c *OpenSCManagerCall) Endpoint() Endpoint { return EndpointSvcctl }
func (c *OpenSCManagerCall) Opnum() uint16      { return OpSvcctlOpenSCManagerW }
func (c *OpenSCManagerCall) Name() string       { return "ROpenSCManagerW" }

func (c *OpenSCManagerCall) Encode() []byte {
	w := newNDRWriter()
	w.uniqueWideString(c.MachineName, c.MachineName != "")
	w.uniqueWideString(c.DatabaseName, c.DatabaseName != "")
	w.uint32(c.DesiredAccess)
	return w.Bytes()
}

func decodeOpenSCManager(_ uint16, r ndrReader) Call {
	c := &OpenSCManagerCall{}
	c.MachineName, _ = r.uniqueWideString()
	c.DatabaseName, _ = r.uniqueWideString()
	c.DesiredAccess = r.uint32()
	return c
}

// SamrConnectCall is SamrConnect. ServerName is a pointer to one wchar.
type SamrConnectCall struct {
	HasServerName bool
	ServerName    uint16
	DesiredAccess uint32
}

func (c *SamrConnectCall) Endpoint() Endpoint { return EndpointSamr }
func (c *SamrConnectCall) Opnum() uint16      { return OpSamrConnect }
func (c *SamrConnectCall) Name() string       { return "SamrConnect" }

func (c *SamrConnectCall) Encode() []byte {
	w := newNDRWriter()
	w.pointer(c.HasServerName)
	if c.HasServerName {
		w.uint16(c.ServerName)
	}
	w.uint32(c.DesiredAccess)
	return w.Bytes()
}

func decodeSamrConnect(_ uint16, r ndrReader) Call {
	c := &SamrConnectCall{}
	if c.HasServerName = r.pointer(); c.HasServerName {
		c.ServerName = r.uint16()
	}
	c.DesiredAccess = r.uint32()
	return c
}

// WkstaGetInfoCall is NetrWkstaGetInfo.
type WkstaGetInfoCall struct {
	ServerName string
	Level      uint32
}

func (c *WkstaGetInfoCall) Endpoint() Endpoint { return EndpointWkssvc }
func (c *WkstaGetInfoCall) Opnum() uint16      { return OpWkssvcNetrWkstaGetInfo }
func (c *WkstaGetInfoCall) Name() string       { return "NetrWkstaGetInfo" }

func (c *WkstaGetInfoCall) Encode() []byte {
	w := newNDRWriter()
	w.uniqueWideString(c.ServerName, c.ServerName != "")
	w.uint32(c.Level)
	return w.Bytes()
}

func decodeWkstaGetInfo(_ uint16, r ndrReader) Call {
	c := &WkstaGetInfoCall{}
	c.ServerName, _ = r.uniqueWideString()
	c.Level = r.uint32()
	return c
}

// EptMapCall is ept_map. The tower is kept as raw octets.
type EptMapCall struct {
	Object      *uuid.UUID
	Tower       []byte
	EntryHandle [ContextHandleSize]byte
	MaxTowers   uint32
}

func (c *EptMapCall) Endpoint() Endpoint { return EndpointEpm }
func (c *EptMapCall) Opnum() uint16      { return OpEpmEptMap }
func (c *EptMapCall) Name() string       { return "ept_map" }

func (c *EptMapCall) Encode() []byte {
	w := newNDRWriter()
	w.pointer(c.Object != nil)
	if c.Object != nil {
		w.guid(*c.Object)
	}
	w.pointer(c.Tower != nil)
	if c.Tower != nil {
		w.uint32(uint32(len(c.Tower)))
		w.uint32(uint32(len(c.Tower)))
		w.WriteBytes(c.Tower)
	}
	w.Pad(4)
	w.WriteBytes(c.EntryHandle[:])
	w.uint32(c.MaxTowers)
	return w.Bytes()
}

func decodeEptMap(_ uint16, r ndrReader) Call {
	c := &EptMapCall{}
	if r.pointer() {
		obj := r.guid()
		c.Object = &obj
	}
	if r.pointer() {
		r.uint32() // max count
		n := int(r.uint32())
		c.Tower = r.ReadBytes(n)
	}
	r.align(4)
	copy(c.EntryHandle[:], r.ReadBytes(ContextHandleSize))
	c.MaxTowers = r.uint32()
	return c
}

// DsBindCall is IDL_DRSBind. Extensions holds the client DRS_EXTENSIONS
// rgb bytes.
type DsBindCall struct {
	ClientDSA  *uuid.UUID
	Extensions []byte
}

func (c *DsBindCall) Endpoint() Endpoint { return EndpointDrsuapi }
func (c *DsBindCall) Opnum() uint16      { return OpDrsuapiBind }
func (c *DsBindCall) Name() string       { return "IDL_DRSBind" }

func (c *DsBindCall) Encode() []byte {
	w := newNDRWriter()
	w.pointer(c.ClientDSA != nil)
	if c.ClientDSA != nil {
		w.guid(*c.ClientDSA)
	}
	w.pointer(c.Extensions != nil)
	if c.Extensions != nil {
		w.uint32(uint32(len(c.Extensions)))
		w.uint32(uint32(len(c.Extensions)))
		w.WriteBytes(c.Extensions)
	}
	return w.Bytes()
}

func decodeDsBind(_ uint16, r ndrReader) Call {
	c := &DsBindCall{}
	if r.pointer() {
		dsa := r.guid()
		c.ClientDSA = &dsa
	}
	if r.pointer() {
		r.uint32() // conformance
		cb := int(r.uint32())
		c.Extensions = r.ReadBytes(cb)
	}
	return c
}
