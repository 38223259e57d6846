package types

import "fmt"

// Status is an NT_STATUS code.
type Status uint32

const (
	StatusSuccess                Status = 0x00000000
	StatusPending                Status = 0x00000103
	StatusInvalidParameter       Status = 0xC000000D
	StatusInvalidDeviceRequest   Status = 0xC0000010
	StatusMoreProcessingRequired Status = 0xC0000016
	StatusAccessDenied           Status = 0xC0000022
	StatusLogonFailure           Status = 0xC000006D
	StatusInsufficientResources  Status = 0xC000009A
	StatusNotSupported           Status = 0xC00000BB
	StatusRequestNotAccepted     Status = 0xC00000D0
	StatusInternalError          Status = 0xC00000E5
	StatusUserSessionDeleted     Status = 0xC0000203
	StatusNetworkSessionExpired  Status = 0xC000035C
)

var statusNames = map[Status]string{
	StatusSuccess:                "STATUS_SUCCESS",
	StatusPending:                "STATUS_PENDING",
	StatusInvalidParameter:       "STATUS_INVALID_PARAMETER",
	StatusInvalidDeviceRequest:   "STATUS_INVALID_DEVICE_REQUEST",
	StatusMoreProcessingRequired: "STATUS_MORE_PROCESSING_REQUIRED",
	StatusAccessDenied:           "STATUS_ACCESS_DENIED",
	StatusLogonFailure:           "STATUS_LOGON_FAILURE",
	StatusInsufficientResources:  "STATUS_INSUFFICIENT_RESOURCES",
	StatusNotSupported:           "STATUS_NOT_SUPPORTED",
	StatusRequestNotAccepted:     "STATUS_REQUEST_NOT_ACCEPTED",
	StatusInternalError:          "STATUS_INTERNAL_ERROR",
	StatusUserSessionDeleted:     "STATUS_USER_SESSION_DELETED",
	StatusNetworkSessionExpired:  "STATUS_NETWORK_SESSION_EXPIRED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_0x%08X", uint32(s))
}

// IsError reports severity 11 (both high bits set).
func (s Status) IsError() bool {
	return uint32(s)&0xC0000000 == 0xC0000000
}

// IsSuccess reports severity 00.
func (s Status) IsSuccess() bool {
	return uint32(s)&0xC0000000 == 0
}
