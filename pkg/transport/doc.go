// Package transport carries DA bridge messages between the gateway and a
// bridge agent.
//
// Each message is a CBOR map (see package wire) prefixed with its length:
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│   TLS (optional)               │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Conn is the gateway side: it dials an agent, runs a read loop that answers
// pings and hands every other frame to a Handler, and watches liveness with
// KeepAlive. Server is the agent side and is used by the simulator.
//
// # Keep-Alive
//
// The dialing side pings; the agent answers with a pong carrying the same
// sequence number. Defaults:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport
