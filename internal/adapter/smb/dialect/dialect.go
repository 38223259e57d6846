// Package dialect is the static catalog of protocol versions the server
// speaks, their preference order and per-dialect security properties.
package dialect

import (
	"fmt"
	"slices"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// Version identifies a negotiated protocol version. SMB2 values are the
// on-wire DialectRevision; SMB1 is a local sentinel that never appears on
// the wire.
type Version uint16

const (
	Unknown  Version = 0x0000
	SMB1     Version = 0x0001
	SMB202   Version = 0x0202
	SMB210   Version = 0x0210
	SMB300   Version = 0x0300
	SMB302   Version = 0x0302
	SMB311   Version = 0x0311
	Wildcard Version = 0x02FF
)

// Algorithm is the signing algorithm a dialect mandates.
type Algorithm int

const (
	AlgNone Algorithm = iota
	AlgMD5
	AlgHMACSHA256
)

func (a Algorithm) String() string {
	switch a {
	case AlgMD5:
		return "MD5"
	case AlgHMACSHA256:
		return "HMAC-SHA256"
	}
	return "none"
}

// Info describes one catalog entry.
type Info struct {
	Version                   Version
	Name                      string
	Algorithm                 Algorithm
	RequiresNegotiateContexts bool
}

var catalog = map[Version]Info{
	SMB1:   {Version: SMB1, Name: "SMB 1.0 (NT LM 0.12)", Algorithm: AlgMD5},
	SMB202: {Version: SMB202, Name: "SMB 2.0.2", Algorithm: AlgHMACSHA256},
	SMB210: {Version: SMB210, Name: "SMB 2.1", Algorithm: AlgHMACSHA256},
	SMB300: {Version: SMB300, Name: "SMB 3.0", Algorithm: AlgHMACSHA256},
	SMB302: {Version: SMB302, Name: "SMB 3.0.2", Algorithm: AlgHMACSHA256},
	SMB311: {Version: SMB311, Name: "SMB 3.1.1", Algorithm: AlgHMACSHA256, RequiresNegotiateContexts: true},
}

// preference is highest first. Selection walks this list, never the
// offeror's order.
var preference = []Version{SMB311, SMB302, SMB300, SMB210, SMB202}

// Lookup returns the catalog entry for v. Unknown versions get a zero Info
// with only Version set.
func Lookup(v Version) Info {
	if info, ok := catalog[v]; ok {
		return info
	}
	return Info{Version: v}
}

// Supported reports whether v is a concrete dialect the server can select.
func Supported(v Version) bool {
	_, ok := catalog[v]
	return ok
}

// Preference returns the SMB2 preference order, highest first.
func Preference() []Version {
	return slices.Clone(preference)
}

// All lists every catalog entry, SMB2 family in preference order then SMB1.
func All() []Info {
	out := make([]Info, 0, len(catalog))
	for _, v := range preference {
		out = append(out, catalog[v])
	}
	return append(out, catalog[SMB1])
}

// SelectSMB2 picks the most preferred version present in offered.
func SelectSMB2(offered []Version) (Version, bool) {
	for _, v := range preference {
		if slices.Contains(offered, v) {
			return v, true
		}
	}
	return Unknown, false
}

// SelectSMB1 returns the position of the legacy dialect string within
// offered. The first occurrence wins.
func SelectSMB1(offered []string) (int, bool) {
	i := slices.Index(offered, types.SMB1DialectNTLM012)
	return i, i >= 0
}

// HasSMB2Wildcard reports whether an SMB1 dialect list asks for the
// multi-protocol upgrade.
func HasSMB2Wildcard(offered []string) bool {
	return slices.Contains(offered, types.SMB1DialectSMB2Wildcard)
}

// String renders SMB2 versions in canonical hex ("0x311") and SMB1 as its
// dialect string.
func (v Version) String() string {
	switch v {
	case SMB1:
		return types.SMB1DialectNTLM012
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("0x%x", uint16(v))
}

// IsSMB2 reports whether v belongs to the SMB2/3 family, wildcard included.
func (v Version) IsSMB2() bool {
	return v >= SMB202
}

// Parse accepts "0x311", "311", "3.1.1" or "smb1".
func Parse(s string) (Version, error) {
	switch s {
	case "smb1", "SMB1", types.SMB1DialectNTLM012:
		return SMB1, nil
	case "2.0.2", "2.02":
		return SMB202, nil
	case "2.1", "2.1.0":
		return SMB210, nil
	case "3.0", "3.0.0":
		return SMB300, nil
	case "3.0.2":
		return SMB302, nil
	case "3.1.1":
		return SMB311, nil
	}
	var n uint16
	if _, err := fmt.Sscanf(s, "0x%x", &n); err != nil {
		if _, err := fmt.Sscanf(s, "%x", &n); err != nil {
			return Unknown, fmt.Errorf("unrecognized dialect %q", s)
		}
	}
	v := Version(n)
	if !Supported(v) || v == SMB1 {
		return Unknown, fmt.Errorf("unsupported dialect %q", s)
	}
	return v, nil
}
