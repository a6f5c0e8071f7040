package discovery

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// BridgeTXT creates TXT records for a DA bridge agent.
func BridgeTXT(progIDs []string, vendor, version string) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyProgIDs: strings.Join(progIDs, ",")}
	if vendor != "" {
		txt[TXTKeyVendor] = vendor
	}
	if version != "" {
		txt[TXTKeyVersion] = version
	}
	return txt
}

// ProgIDs returns the ProgIDs listed by a bridge agent.
func (t TXTRecordMap) ProgIDs() []string {
	raw, ok := t[TXTKeyProgIDs]
	if !ok {
		return nil
	}
	var ids []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// Endpoints returns the backend endpoint URLs reachable through the service.
// UA servers yield one endpoint; bridge agents yield one per ProgID.
func (s *Service) Endpoints() ([]string, error) {
	host := s.Host
	if host == "" && len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	host = strings.TrimSuffix(host, ".")
	hostport := net.JoinHostPort(host, strconv.Itoa(int(s.Port)))

	switch s.Kind {
	case KindUA:
		u := url.URL{Scheme: "opc.tcp", Host: hostport}
		if p := strings.Trim(s.TXT[TXTKeyPath], "/"); p != "" {
			u.Path = "/" + p
		}
		return []string{u.String()}, nil
	case KindDABridge:
		ids := s.TXT.ProgIDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProgIDs)
		}
		eps := make([]string, 0, len(ids))
		for _, id := range ids {
			u := url.URL{Scheme: "opcda", Host: hostport, Path: "/" + id}
			eps = append(eps, u.String())
		}
		return eps, nil
	default:
		return nil, ErrUnknownKind
	}
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// Keys are emitted in sorted order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := make([]string, 0, len(txt))
	for _, k := range keys {
		result = append(result, fmt.Sprintf("%s=%s", k, txt[k]))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	if strings.ContainsAny(name, ".\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidInstanceName, name)
	}
	return nil
}
