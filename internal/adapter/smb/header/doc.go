// Package header parses and encodes the 64-byte SMB2 packet header.
//
//	Offset  Size  Field
//	------  ----  -------------
//	0       4     ProtocolID    0xFE 'S' 'M' 'B'
//	4       2     StructureSize 64
//	6       2     CreditCharge
//	8       4     Status
//	12      2     Command
//	14      2     Credits
//	16      4     Flags
//	20      4     NextCommand
//	24      8     MessageID
//	32      4     Reserved (ProcessID)
//	36      4     TreeID
//	40      8     SessionID
//	48      16    Signature
//
// All fields are little-endian. Parsing and encoding are stateless.
//
// Reference: [MS-SMB2] 2.2.1.
package header
