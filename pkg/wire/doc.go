// Package wire defines the DA bridge message format.
//
// The DA bridge protocol connects the gateway to an agent co-located with a
// legacy DA server. Messages are CBOR maps with integer keys, carried in
// length-prefixed frames (see package transport).
//
// Every message carries its type under key 0 so a receiver can dispatch
// without decoding the payload:
//
//	request:  {0: 1, 1: messageId, 2: operation, 3: payload}
//	response: {0: 2, 1: messageId, 2: status,    3: payload}
//	callback: {0: 3, 1: groupHandle, 2: [itemValue...]}
//	control:  {0: 4, 1: controlType, 2: sequence}
//
// Payloads are encoded independently and carried as raw CBOR so each side
// decodes them into the operation-specific struct.
package wire
