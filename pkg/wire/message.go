package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys shared by all messages.
const (
	KeyMessageType = 0
	KeyMessageID   = 1
	KeyOpOrStatus  = 2
	KeyPayload     = 3
)

// ProtocolVersion is the DA bridge protocol version sent in hello.
const ProtocolVersion uint16 = 1

// MessageType distinguishes requests, responses, callbacks and control messages.
type MessageType uint8

const (
	MessageTypeUnknown  MessageType = 0
	MessageTypeRequest  MessageType = 1
	MessageTypeResponse MessageType = 2
	MessageTypeCallback MessageType = 3
	MessageTypeControl  MessageType = 4
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeCallback:
		return "CALLBACK"
	case MessageTypeControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Request is a DA bridge request from gateway to agent.
type Request struct {
	Type      MessageType     `cbor:"0,keyasint"`
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// NewRequest builds a request, encoding payload when it is non-nil.
func NewRequest(msgID uint32, op Operation, payload any) (*Request, error) {
	req := &Request{Type: MessageTypeRequest, MessageID: msgID, Operation: op}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		req.Payload = raw
	}
	return req, nil
}

// Validate checks if the request is well formed.
func (r *Request) Validate() error {
	if r.MessageID == 0 {
		return fmt.Errorf("messageId 0 is reserved")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// Response is a DA bridge response from agent to gateway.
type Response struct {
	Type      MessageType     `cbor:"0,keyasint"`
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// NewResponse builds a response, encoding payload when it is non-nil.
func NewResponse(msgID uint32, status Status, payload any) (*Response, error) {
	resp := &Response{Type: MessageTypeResponse, MessageID: msgID, Status: status}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode response payload: %w", err)
		}
		resp.Payload = raw
	}
	return resp, nil
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// Callback carries data change notifications for one server group.
type Callback struct {
	Type        MessageType `cbor:"0,keyasint"`
	GroupHandle uint32      `cbor:"1,keyasint"`
	Items       []ItemValue `cbor:"2,keyasint"`
}

// ControlMessage is a transport-level control message.
type ControlMessage struct {
	Type     MessageType        `cbor:"0,keyasint"`
	Control  ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32             `cbor:"2,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}

func decodeRaw(raw cbor.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return Unmarshal(raw, v)
}
