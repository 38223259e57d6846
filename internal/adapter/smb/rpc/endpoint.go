package rpc

import (
	"fmt"
	"strings"
)

// Endpoint names the RPC interface bound on a pipe. It is the first
// discriminant for stub decoding.
type Endpoint uint8

const (
	EndpointUnknown Endpoint = iota
	EndpointWinreg
	EndpointNetlogon
	EndpointSrvsvc
	EndpointSvcctl
	EndpointSamr
	EndpointWkssvc
	EndpointEpm
	EndpointDrsuapi

	// EndpointEncrypted marks a sealed stub; it is never decoded.
	EndpointEncrypted
)

var endpointNames = map[Endpoint]string{
	EndpointWinreg:    "winreg",
	EndpointNetlogon:  "netlogon",
	EndpointSrvsvc:    "srvsvc",
	EndpointSvcctl:    "svcctl",
	EndpointSamr:      "samr",
	EndpointWkssvc:    "wkssvc",
	EndpointEpm:       "epm",
	EndpointDrsuapi:   "drsuapi",
	EndpointEncrypted: "encrypted",
}

func (e Endpoint) String() string {
	if s, ok := endpointNames[e]; ok {
		return s
	}
	return "unknown"
}

// ParseEndpoint maps a pipe or interface name to an Endpoint. A leading
// "\PIPE\" is ignored and matching is case-insensitive.
func ParseEndpoint(name string) (Endpoint, error) {
	n := strings.ToLower(name)
	n = strings.TrimPrefix(n, `\pipe\`)
	switch n {
	case "drsr":
		return EndpointDrsuapi, nil
	case "epmapper":
		return EndpointEpm, nil
	}
	for e, s := range endpointNames {
		if s == n {
			return e, nil
		}
	}
	return EndpointUnknown, fmt.Errorf("unknown rpc endpoint %q", name)
}

// Endpoints lists the decodable endpoints in declaration order.
func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointWinreg, EndpointNetlogon, EndpointSrvsvc, EndpointSvcctl,
		EndpointSamr, EndpointWkssvc, EndpointEpm, EndpointDrsuapi,
	}
}
