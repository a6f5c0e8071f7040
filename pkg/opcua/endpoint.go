package opcua

import (
	"net/url"
	"strconv"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// Scheme is the UA binary endpoint scheme.
const Scheme = "opc.tcp"

// DefaultPort is the registered UA binary port.
const DefaultPort = 4840

// ParseEndpoint checks that endpoint is an opc.tcp:// URL and returns it
// parsed.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, backend.Errorf(backend.KindProtocolMismatch, "connect", "invalid endpoint %q: %v", endpoint, err)
	}
	if u.Scheme != Scheme {
		return nil, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: scheme must be %s://", endpoint, Scheme)
	}
	if u.Hostname() == "" {
		return nil, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: missing host", endpoint)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			return nil, backend.Errorf(backend.KindProtocolMismatch, "connect", "endpoint %q: invalid port", endpoint)
		}
	}
	return u, nil
}
