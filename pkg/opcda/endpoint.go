package opcda

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
)

// Scheme is the endpoint URL scheme of DA bridge agents.
const Scheme = "opcda"

// Endpoint is a parsed DA endpoint.
type Endpoint struct {
	// Address is host:port of the bridge agent.
	Address string

	// ProgID names the DA server.
	ProgID string
}

// ParseEndpoint parses an opcda:// URL.
func ParseEndpoint(endpoint string) (Endpoint, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Endpoint{}, backend.Errorf(backend.KindProtocolMismatch, "connect", "invalid endpoint %q: %v", endpoint, err)
	}
	if u.Scheme != Scheme {
		return Endpoint{}, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: scheme must be %s://", endpoint, Scheme)
	}
	if u.Hostname() == "" {
		return Endpoint{}, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: missing host", endpoint)
	}
	progID := strings.Trim(u.Path, "/")
	if progID == "" || strings.Contains(progID, "/") {
		return Endpoint{}, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: path must be a single ProgID", endpoint)
	}

	port := u.Port()
	if port == "" {
		port = strconv.Itoa(transport.DefaultPort)
	} else if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return Endpoint{}, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: invalid port", endpoint)
	}
	return Endpoint{Address: net.JoinHostPort(u.Hostname(), port), ProgID: progID}, nil
}
