// Package opcua implements the UA backend family on top of gopcua.
//
// Browse paths are node ids in their string form ("ns=2;s=Line1"); the
// empty path is the Objects folder. Item ids are node ids as well.
//
// Each backend group is one UA subscription. Items are monitored items
// whose client handle doubles as the backend.ItemHandle, so data change
// notifications map straight back to registry members. The requested
// interval becomes the publishing interval and the sampling interval; the
// server-revised publishing interval is reported as the granted interval.
//
// Sessions never reconnect on their own. A lost connection surfaces as an
// Unreachable error and the backend pool redials.
package opcua
