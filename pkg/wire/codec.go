package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Bridge frames carry one CBOR map each. Source timestamps order pushes, so
// sub-second precision must survive the round trip.
var (
	encMode = func() cbor.EncMode {
		em, err := cbor.EncOptions{
			Sort:          cbor.SortCanonical,
			IndefLength:   cbor.IndefLengthForbidden,
			NilContainers: cbor.NilContainerAsNull,
			Time:          cbor.TimeRFC3339Nano,
		}.EncMode()
		if err != nil {
			panic(fmt.Sprintf("wire: CBOR encoder options: %v", err))
		}
		return em
	}()

	decMode = func() cbor.DecMode {
		dm, err := cbor.DecOptions{
			DupMapKey:         cbor.DupMapKeyQuiet,
			IndefLength:       cbor.IndefLengthAllowed,
			ExtraReturnErrors: cbor.ExtraDecErrorNone,
		}.DecMode()
		if err != nil {
			panic(fmt.Sprintf("wire: CBOR decoder options: %v", err))
		}
		return dm
	}()
)

// Marshal encodes v with the bridge encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes bridge-encoded data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// typed is the set of top-level bridge messages.
type typed interface {
	Request | Response | Callback | ControlMessage
}

func messageType[T typed](m *T) MessageType {
	switch v := any(m).(type) {
	case *Request:
		return v.Type
	case *Response:
		return v.Type
	case *Callback:
		return v.Type
	case *ControlMessage:
		return v.Type
	}
	return MessageTypeUnknown
}

// decode unmarshals data into a T and checks its type key.
func decode[T typed](data []byte, want MessageType) (*T, error) {
	var m T
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", want, err)
	}
	if got := messageType(&m); got != want {
		return nil, fmt.Errorf("expected %s message, got type=%s", want, got)
	}
	return &m, nil
}

// EncodeRequest validates and encodes a request.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Type = MessageTypeRequest
	return Marshal(req)
}

// DecodeRequest decodes and validates a request.
func DecodeRequest(data []byte) (*Request, error) {
	req, err := decode[Request](data, MessageTypeRequest)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

func EncodeResponse(resp *Response) ([]byte, error) {
	resp.Type = MessageTypeResponse
	return Marshal(resp)
}

func DecodeResponse(data []byte) (*Response, error) {
	return decode[Response](data, MessageTypeResponse)
}

// EncodeCallback encodes a group data change push.
func EncodeCallback(cb *Callback) ([]byte, error) {
	cb.Type = MessageTypeCallback
	return Marshal(cb)
}

func DecodeCallback(data []byte) (*Callback, error) {
	return decode[Callback](data, MessageTypeCallback)
}

// EncodeControlMessage encodes a ping, pong or close.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	msg.Type = MessageTypeControl
	return Marshal(msg)
}

func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	return decode[ControlMessage](data, MessageTypeControl)
}

// PeekMessageType reads key 0 of a message without decoding the rest.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		Type MessageType `cbor:"0,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message: %w", err)
	}
	switch peek.Type {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeCallback, MessageTypeControl:
		return peek.Type, nil
	default:
		return MessageTypeUnknown, fmt.Errorf("unknown message type %d", peek.Type)
	}
}
