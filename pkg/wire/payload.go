package wire

import "time"

// HelloPayload opens a session. Proof is derived from the shared secret of
// User and Nonce (see interaction.ComputeProof).
type HelloPayload struct {
	Version uint16 `cbor:"1,keyasint"`
	ProgID  string `cbor:"2,keyasint"`
	User    string `cbor:"3,keyasint,omitempty"`
	Nonce   []byte `cbor:"4,keyasint,omitempty"`
	Proof   []byte `cbor:"5,keyasint,omitempty"`
}

// HelloResponse acknowledges a session.
type HelloResponse struct {
	SessionID  string `cbor:"1,keyasint"`
	ServerName string `cbor:"2,keyasint,omitempty"`
	Vendor     string `cbor:"3,keyasint,omitempty"`
}

// BrowsePayload requests the children of a branch. An empty path is the root.
type BrowsePayload struct {
	Path string `cbor:"1,keyasint,omitempty"`
}

// BrowseEntry describes one child in a browse response.
type BrowseEntry struct {
	Name         string `cbor:"1,keyasint"`
	ItemID       string `cbor:"2,keyasint"`
	IsBranch     bool   `cbor:"3,keyasint,omitempty"`
	DataType     string `cbor:"4,keyasint,omitempty"`
	Unit         string `cbor:"5,keyasint,omitempty"`
	Description  string `cbor:"6,keyasint,omitempty"`
	AccessRights uint8  `cbor:"7,keyasint,omitempty"`
}

// Access right bits carried in BrowseEntry.AccessRights.
const (
	AccessReadable uint8 = 1
	AccessWritable uint8 = 2
)

// BrowseResponse lists the children of a branch.
type BrowseResponse struct {
	Entries []BrowseEntry `cbor:"1,keyasint"`
}

// ReadPayload requests a synchronous device read.
type ReadPayload struct {
	ItemID string `cbor:"1,keyasint"`
}

// ItemValue is a value with DA quality and source timestamp. Handle is the
// client handle assigned in AddItemPayload (zero in read responses).
type ItemValue struct {
	Handle    uint32    `cbor:"1,keyasint,omitempty"`
	Value     any       `cbor:"2,keyasint"`
	Quality   uint16    `cbor:"3,keyasint"`
	Timestamp time.Time `cbor:"4,keyasint"`
}

// CreateGroupPayload requests a group with an update rate in milliseconds.
type CreateGroupPayload struct {
	UpdateRate uint32 `cbor:"1,keyasint"`
}

// CreateGroupResponse returns the server handle and the revised rate.
type CreateGroupResponse struct {
	GroupHandle uint32 `cbor:"1,keyasint"`
	RevisedRate uint32 `cbor:"2,keyasint"`
}

// RemoveGroupPayload releases a group.
type RemoveGroupPayload struct {
	GroupHandle uint32 `cbor:"1,keyasint"`
}

// AddItemPayload adds an item to a group under a client handle.
type AddItemPayload struct {
	GroupHandle  uint32 `cbor:"1,keyasint"`
	ItemID       string `cbor:"2,keyasint"`
	ClientHandle uint32 `cbor:"3,keyasint"`
}

// AddItemResponse returns the server handle of the added item.
type AddItemResponse struct {
	ServerHandle uint32 `cbor:"1,keyasint"`
}

// RemoveItemPayload removes an item from a group.
type RemoveItemPayload struct {
	GroupHandle  uint32 `cbor:"1,keyasint"`
	ServerHandle uint32 `cbor:"2,keyasint"`
}

// ServerState mirrors the DA server state enumeration.
type ServerState uint8

const (
	ServerRunning   ServerState = 1
	ServerFailed    ServerState = 2
	ServerNoConfig  ServerState = 3
	ServerSuspended ServerState = 4
	ServerTest      ServerState = 5
)

// String returns the server state name.
func (s ServerState) String() string {
	switch s {
	case ServerRunning:
		return "RUNNING"
	case ServerFailed:
		return "FAILED"
	case ServerNoConfig:
		return "NOCONFIG"
	case ServerSuspended:
		return "SUSPENDED"
	case ServerTest:
		return "TEST"
	default:
		return "UNKNOWN"
	}
}

// StatusResponse reports the DA server status.
type StatusResponse struct {
	State       ServerState `cbor:"1,keyasint"`
	StartTime   time.Time   `cbor:"2,keyasint"`
	CurrentTime time.Time   `cbor:"3,keyasint"`
	Vendor      string      `cbor:"4,keyasint,omitempty"`
	GroupCount  uint32      `cbor:"5,keyasint,omitempty"`
}

// ErrorPayload carries the agent's diagnostic message for a failed request.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint"`
	Code    int32  `cbor:"2,keyasint,omitempty"`
}
