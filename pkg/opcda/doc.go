// Package opcda implements backend.Driver for legacy DA servers reached
// through a DA bridge agent.
//
// Endpoints have the form
//
//	opcda://host[:port]/ProgID
//
// where ProgID names the DA server the agent should attach to. The port
// defaults to transport.DefaultPort. A session is one bridge connection: it
// says hello (with an HKDF proof when credentials are given), then maps the
// backend.Session calls onto bridge requests. Group callbacks carry the
// client handles assigned at AddItem and are delivered to the registered
// PushFunc on the connection's read goroutine.
package opcda
