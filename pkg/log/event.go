package log

import (
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the backend connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the backend endpoint URL, when known.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
	Tag         *TagEvent         `cbor:"15,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerSession is the backend session layer (either protocol family).
	LayerSession Layer = 2
	// LayerEngine is the tag registry and subscription engine.
	LayerEngine Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (request/response/callback).
	CategoryMessage Category = 0
	// CategoryControl indicates a control message (ping/pong/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
	// CategoryTag indicates a tag lifecycle event.
	CategoryTag Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryTag:
		return "TAG"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded DA bridge message at the wire layer.
type MessageEvent struct {
	// Type distinguishes request/response/callback.
	Type wire.MessageType `cbor:"1,keyasint"`

	// MessageID correlates request/response pairs (0 for callbacks).
	MessageID uint32 `cbor:"2,keyasint"`

	// For requests: the operation being performed.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"4,keyasint,omitempty"`

	// For callbacks: the server group handle.
	GroupHandle *uint32 `cbor:"5,keyasint,omitempty"`

	// ProcessingTime is the duration from request send to response receipt.
	ProcessingTime *time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures connection and group lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a backend connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityGroup indicates a subscription group state change.
	StateEntityGroup StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityGroup:
		return "GROUP"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type wire.ControlMessageType `cbor:"1,keyasint"`

	// Sequence is the ping/pong sequence number.
	Sequence uint32 `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind is the normalized error kind (if applicable).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// TagAction identifies a tag lifecycle transition.
type TagAction uint8

const (
	// TagCreated indicates a tag was registered with its first value.
	TagCreated TagAction = 0
	// TagUpgraded indicates a tag moved to a faster group.
	TagUpgraded TagAction = 1
	// TagEvicted indicates the reaper removed an idle tag.
	TagEvicted TagAction = 2
	// TagDropped indicates a tag was removed by disconnect or clear-all.
	TagDropped TagAction = 3
)

// String returns the action name.
func (a TagAction) String() string {
	switch a {
	case TagCreated:
		return "CREATED"
	case TagUpgraded:
		return "UPGRADED"
	case TagEvicted:
		return "EVICTED"
	case TagDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// TagEvent captures a tag registry transition.
type TagEvent struct {
	Action   TagAction     `cbor:"1,keyasint"`
	ItemID   string        `cbor:"2,keyasint"`
	Interval time.Duration `cbor:"3,keyasint,omitempty"`
	GroupID  uint64        `cbor:"4,keyasint,omitempty"`
}
