package transport

import (
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// EncodePing encodes a ping control message.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Control: wire.ControlPing, Sequence: seq})
}

// EncodePong encodes a pong control message.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Control: wire.ControlPong, Sequence: seq})
}

// EncodeClose encodes a close control message.
func EncodeClose() ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Control: wire.ControlClose})
}

// asControl returns the decoded control message if data is one.
func asControl(data []byte) (*wire.ControlMessage, bool) {
	mt, err := wire.PeekMessageType(data)
	if err != nil || mt != wire.MessageTypeControl {
		return nil, false
	}
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		return nil, false
	}
	return msg, true
}

func logControl(logger log.Logger, connID, endpoint, remote string, msg wire.ControlMessageType, seq uint32, dir log.Direction) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Endpoint:     endpoint,
		RemoteAddr:   remote,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: msg, Sequence: seq},
	})
}

func logState(logger log.Logger, connID, endpoint, remote, oldState, newState, reason string) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Endpoint:     endpoint,
		RemoteAddr:   remote,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
