package interaction

import (
	"errors"
	"fmt"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// StatusError is a non-success response from the agent.
type StatusError struct {
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status.String()
}

// Errorf builds a StatusError. Handlers return it to choose the response
// status; any other error becomes SERVER_FAILURE.
func Errorf(status wire.Status, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusOf returns the status carried by err, or StatusServerFailure.
func StatusOf(err error) wire.Status {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return wire.StatusServerFailure
}

func statusError(resp *wire.Response) error {
	se := &StatusError{Status: resp.Status}
	var ep wire.ErrorPayload
	if len(resp.Payload) > 0 && resp.DecodePayload(&ep) == nil {
		se.Message = ep.Message
	}
	return se
}
