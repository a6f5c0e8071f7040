package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates the item, branch or group does not exist.
	StatusNotFound Status = 1

	// StatusAccessDenied indicates the item is not readable by this session.
	StatusAccessDenied Status = 2

	// StatusAuthRejected indicates the hello credentials were rejected.
	StatusAuthRejected Status = 3

	// StatusProtocolMismatch indicates an unsupported protocol version or ProgID.
	StatusProtocolMismatch Status = 4

	// StatusInvalidParameter indicates a malformed payload.
	StatusInvalidParameter Status = 5

	// StatusServerFailure indicates the DA server reported an internal failure.
	StatusServerFailure Status = 6

	// StatusUnsupported indicates the operation is not supported.
	StatusUnsupported Status = 7

	// StatusNoSession indicates a request arrived before a successful hello.
	StatusNoSession Status = 8
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusAuthRejected:
		return "AUTH_REJECTED"
	case StatusProtocolMismatch:
		return "PROTOCOL_MISMATCH"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusServerFailure:
		return "SERVER_FAILURE"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusNoSession:
		return "NO_SESSION"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
