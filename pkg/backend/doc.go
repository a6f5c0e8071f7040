// Package backend defines the capability set the tag engine needs from a
// process-data server, independent of protocol family.
//
// A Driver dials one endpoint and returns a Session. Two drivers exist: the
// UA driver in package opcua and the DA bridge driver in package opcda. The
// registry and subscription packages are written against Session only.
//
// Pool keeps one Session per endpoint string. A session that fails with an
// Unreachable error is dropped; the next Get redials lazily once the
// reconnect backoff has elapsed, and OnReconnect lets subscription groups
// rebind to the new session.
//
// Every failure a driver returns is an *Error carrying one of the normalized
// kinds and the original protocol message.
package backend
