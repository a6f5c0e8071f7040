package wire

// Operation represents a DA bridge request operation.
type Operation uint8

const (
	// OpHello opens a session against a DA server ProgID and authenticates.
	OpHello Operation = 1

	// OpBrowse lists the children of an address space branch.
	OpBrowse Operation = 2

	// OpRead performs a synchronous device read of one item.
	OpRead Operation = 3

	// OpCreateGroup creates a server-side group with an update rate.
	OpCreateGroup Operation = 4

	// OpRemoveGroup releases a server-side group.
	OpRemoveGroup Operation = 5

	// OpAddItem adds an item to a group.
	OpAddItem Operation = 6

	// OpRemoveItem removes an item from a group.
	OpRemoveItem Operation = 7

	// OpStatus returns the DA server status.
	OpStatus Operation = 8
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpHello:
		return "HELLO"
	case OpBrowse:
		return "BROWSE"
	case OpRead:
		return "READ"
	case OpCreateGroup:
		return "CREATE_GROUP"
	case OpRemoveGroup:
		return "REMOVE_GROUP"
	case OpAddItem:
		return "ADD_ITEM"
	case OpRemoveItem:
		return "REMOVE_ITEM"
	case OpStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the operation is a known DA bridge operation.
func (o Operation) IsValid() bool {
	return o >= OpHello && o <= OpStatus
}
