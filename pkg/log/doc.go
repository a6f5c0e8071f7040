// Package log provides structured protocol event capture for the gateway.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at several layers (DA bridge transport and wire,
// backend sessions, and the tag engine). It is separate from operational
// logging (slog): protocol capture produces a machine-readable trace that can
// be replayed when a backend misbehaves.
//
// # Basic Usage
//
//	// Development: mirror events into the operational log
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR events to a file
//	fl, _ := log.NewFileLogger("/var/log/opcgw/protocol.glog", log.WithMaxSize(64<<20))
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded DA bridge messages (MessageEvent)
//   - Session: connection state changes (StateChangeEvent)
//   - Engine: tag lifecycle (TagEvent)
//
// Control messages (ping/pong/close) and errors have dedicated event types.
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events with integer keys.
// A FileLogger with a size limit rotates to path.1 .. path.N. Reader streams
// events back with optional filtering; NewStreamReader reads from a pipe,
// where a cut-off last event surfaces as ErrTruncated.
package log
