package types

import "fmt"

// Protocol markers as little-endian uint32 of the first four header bytes.
const (
	SMB1ProtocolID uint32 = 0x424D53FF // 0xFF 'S' 'M' 'B'
	SMB2ProtocolID uint32 = 0x424D53FE // 0xFE 'S' 'M' 'B'
)

// Command is an SMB2 command code.
type Command uint16

const (
	CommandNegotiate      Command = 0x0000
	CommandSessionSetup   Command = 0x0001
	CommandLogoff         Command = 0x0002
	CommandTreeConnect    Command = 0x0003
	CommandTreeDisconnect Command = 0x0004
	CommandCreate         Command = 0x0005
	CommandClose          Command = 0x0006
	CommandFlush          Command = 0x0007
	CommandRead           Command = 0x0008
	CommandWrite          Command = 0x0009
	CommandLock           Command = 0x000A
	CommandIoctl          Command = 0x000B
	CommandCancel         Command = 0x000C
	CommandEcho           Command = 0x000D
	CommandQueryDirectory Command = 0x000E
	CommandChangeNotify   Command = 0x000F
	CommandQueryInfo      Command = 0x0010
	CommandSetInfo        Command = 0x0011
	CommandOplockBreak    Command = 0x0012
)

var commandNames = [...]string{
	"NEGOTIATE", "SESSION_SETUP", "LOGOFF", "TREE_CONNECT", "TREE_DISCONNECT",
	"CREATE", "CLOSE", "FLUSH", "READ", "WRITE", "LOCK", "IOCTL", "CANCEL",
	"ECHO", "QUERY_DIRECTORY", "CHANGE_NOTIFY", "QUERY_INFO", "SET_INFO",
	"OPLOCK_BREAK",
}

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("COMMAND_0x%04X", uint16(c))
}

// HeaderFlags is the SMB2 header Flags field.
type HeaderFlags uint32

const (
	FlagServerToRedir HeaderFlags = 0x00000001
	FlagAsyncCommand  HeaderFlags = 0x00000002
	FlagRelatedOps    HeaderFlags = 0x00000004
	FlagSigned        HeaderFlags = 0x00000008
)

func (f HeaderFlags) IsResponse() bool { return f&FlagServerToRedir != 0 }
func (f HeaderFlags) IsAsync() bool    { return f&FlagAsyncCommand != 0 }
func (f HeaderFlags) IsSigned() bool   { return f&FlagSigned != 0 }

// SecurityMode is the NEGOTIATE / SESSION_SETUP SecurityMode field.
type SecurityMode uint16

const (
	NegotiateSigningEnabled  SecurityMode = 0x0001
	NegotiateSigningRequired SecurityMode = 0x0002
)

func (m SecurityMode) SigningEnabled() bool  { return m&NegotiateSigningEnabled != 0 }
func (m SecurityMode) SigningRequired() bool { return m&NegotiateSigningRequired != 0 }

func (m SecurityMode) String() string {
	switch {
	case m.SigningRequired():
		return "signing-required"
	case m.SigningEnabled():
		return "signing-enabled"
	}
	return "none"
}

// SMB2 global capabilities.
const (
	CapDFS               uint32 = 0x00000001
	CapLeasing           uint32 = 0x00000002
	CapLargeMTU          uint32 = 0x00000004
	CapMultiChannel      uint32 = 0x00000008
	CapPersistentHandles uint32 = 0x00000010
	CapDirectoryLeasing  uint32 = 0x00000020
	CapEncryption        uint32 = 0x00000040
)

// Negotiate context types.
const (
	NegCtxPreauthIntegrity uint16 = 0x0001
	NegCtxEncryption       uint16 = 0x0002
	NegCtxCompression      uint16 = 0x0003
	NegCtxNetname          uint16 = 0x0005
	NegCtxTransport        uint16 = 0x0006
	NegCtxRDMATransform    uint16 = 0x0007
	NegCtxSigning          uint16 = 0x0008
)

// Preauth integrity hash algorithms.
const (
	HashAlgSHA512 uint16 = 0x0001
)

// Encryption ciphers.
const (
	CipherAES128CCM uint16 = 0x0001
	CipherAES128GCM uint16 = 0x0002
	CipherAES256CCM uint16 = 0x0003
	CipherAES256GCM uint16 = 0x0004
)

// PreauthSaltSize is the salt length the server draws for 3.1.1.
const PreauthSaltSize = 32

// Session flags in the SESSION_SETUP response.
const (
	SessionFlagIsGuest uint16 = 0x0001
	SessionFlagIsNull  uint16 = 0x0002
)

// SMB1 values used by the legacy negotiate path.
const (
	SMB1CommandNegotiate uint8 = 0x72
	SMB1HeaderSize             = 32

	SMB1FlagsReply            uint8  = 0x80
	SMB1FlagsCaseInsensitive  uint8  = 0x08
	SMB1Flags2LongNames       uint16 = 0x0001
	SMB1Flags2SecuritySig     uint16 = 0x0004
	SMB1Flags2ExtendedSec     uint16 = 0x0800
	SMB1Flags2NTStatus        uint16 = 0x4000
	SMB1Flags2Unicode         uint16 = 0x8000
	SMB1SecurityFeaturesStart        = 14
	SMB1SecurityFeaturesSize         = 8

	SMB1SecurityModeUserLevel       uint8 = 0x01
	SMB1SecurityModeEncrypt         uint8 = 0x02
	SMB1SecurityModeSigningEnabled  uint8 = 0x04
	SMB1SecurityModeSigningRequired uint8 = 0x08

	SMB1CapUnicode          uint32 = 0x00000004
	SMB1CapLargeFiles       uint32 = 0x00000008
	SMB1CapNTSMBs           uint32 = 0x00000010
	SMB1CapRPCRemoteAPIs    uint32 = 0x00000020
	SMB1CapNTStatus         uint32 = 0x00000040
	SMB1CapLevel2Oplocks    uint32 = 0x00000080
	SMB1CapLargeReadX       uint32 = 0x00004000
	SMB1CapLargeWriteX      uint32 = 0x00008000
	SMB1CapExtendedSecurity uint32 = 0x80000000

	// SMB1DialectNotSupported is the DialectIndex sent when nothing matched.
	SMB1DialectNotSupported uint16 = 0xFFFF
)

// SMB1 dialect strings of interest.
const (
	SMB1DialectNTLM012     = "NT LM 0.12"
	SMB1DialectSMB2002     = "SMB 2.002"
	SMB1DialectSMB2Wildcard = "SMB 2.???"
)
