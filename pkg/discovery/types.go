package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeUA is the DNS-SD type for OPC UA servers (binary TCP).
	ServiceTypeUA = "_opcua-tcp._tcp"

	// ServiceTypeDABridge is the DNS-SD type for DA bridge agents.
	ServiceTypeDABridge = "_opcda-bridge._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record key constants.
const (
	TXTKeyPath    = "path"   // UA endpoint path (optional)
	TXTKeyProgIDs = "progid" // ProgIDs served by a bridge (comma-separated)
	TXTKeyVendor  = "vendor" // Vendor name (optional)
	TXTKeyVersion = "ver"    // Agent or server version (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for FindAll.
	BrowseTimeout = 3 * time.Second

	// DefaultTTL is the DNS record TTL used when advertising.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen keeps a key=value pair inside a single TXT string.
	MaxTXTValueLen = 200
)

// Errors.
var (
	ErrMissingRequired     = errors.New("discovery: missing required TXT record")
	ErrInstanceNameTooLong = errors.New("discovery: instance name exceeds 63 characters")
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name")
	ErrTXTValueTooLong     = errors.New("discovery: TXT value too long")
	ErrUnknownKind         = errors.New("discovery: unknown service kind")
	ErrInvalidPort         = errors.New("discovery: invalid port")
)

// Kind identifies which backend family a service belongs to.
type Kind uint8

const (
	// KindUA is an OPC UA server.
	KindUA Kind = iota
	// KindDABridge is a DA bridge agent.
	KindDABridge
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUA:
		return "UA"
	case KindDABridge:
		return "DA"
	default:
		return "UNKNOWN"
	}
}

// ServiceType returns the DNS-SD service type browsed for the kind.
func (k Kind) ServiceType() (string, error) {
	switch k {
	case KindUA:
		return ServiceTypeUA, nil
	case KindDABridge:
		return ServiceTypeDABridge, nil
	default:
		return "", ErrUnknownKind
	}
}

// Service is a backend found by browsing.
type Service struct {
	Kind      Kind
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	TXT       TXTRecordMap
}

// Advertisement describes a service to publish.
type Advertisement struct {
	Kind     Kind
	Instance string
	Port     uint16
	TXT      TXTRecordMap
}

// Validate checks the advertisement before registration.
func (a *Advertisement) Validate() error {
	if err := ValidateInstanceName(a.Instance); err != nil {
		return err
	}
	if a.Port == 0 {
		return ErrInvalidPort
	}
	if _, err := a.Kind.ServiceType(); err != nil {
		return err
	}
	if a.Kind == KindDABridge {
		if _, ok := a.TXT[TXTKeyProgIDs]; !ok {
			return ErrMissingRequired
		}
	}
	for _, v := range a.TXT {
		if len(v) > MaxTXTValueLen {
			return ErrTXTValueTooLong
		}
	}
	return nil
}
