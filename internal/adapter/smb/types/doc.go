// Package types holds SMB1 and SMB2 wire constants shared by the codec,
// negotiation and signing packages: protocol markers, command codes, header
// flags, security-mode and capability bits, negotiate-context identifiers,
// NT_STATUS codes and FILETIME helpers.
//
// References: [MS-CIFS] 2.2.3.1, [MS-SMB2] 2.2.1 and 2.2.3, [MS-ERREF] 2.3.
package types
