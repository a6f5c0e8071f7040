// Package discovery implements mDNS/DNS-SD discovery of gateway backends.
//
// Two service types are browsed:
//
// # UA Servers (_opcua-tcp._tcp)
//
// The registered DNS-SD type for OPC UA servers speaking the binary TCP
// mapping. The optional TXT key "path" carries the endpoint path; the
// resulting endpoint is opc.tcp://<host>:<port>/<path>.
//
// # DA Bridge Agents (_opcda-bridge._tcp)
//
// Bridge agents front classic DA servers on Windows hosts. TXT records
// include "progid" (comma-separated ProgIDs served by the agent) and
// optionally "vendor" and "ver". One endpoint per ProgID is produced:
// opcda://<host>:<port>/<progid>.
//
// Services are aggregated by instance name: answers arriving on several
// interfaces are merged into a single entry with the union of addresses.
// The advertiser is used by the DA bridge simulator so gateways on the same
// segment can find it without configuration.
package discovery
