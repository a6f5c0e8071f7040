package interaction

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// Handler implements the agent side of the DA bridge operations for one
// connection. Returning a *StatusError selects the response status.
type Handler interface {
	Hello(ctx context.Context, p wire.HelloPayload) (*wire.HelloResponse, error)
	Browse(ctx context.Context, path string) ([]wire.BrowseEntry, error)
	Read(ctx context.Context, itemID string) (wire.ItemValue, error)
	CreateGroup(ctx context.Context, rate uint32) (wire.CreateGroupResponse, error)
	RemoveGroup(ctx context.Context, group uint32) error
	AddItem(ctx context.Context, p wire.AddItemPayload) (uint32, error)
	RemoveItem(ctx context.Context, p wire.RemoveItemPayload) error
	Status(ctx context.Context) (wire.StatusResponse, error)
}

// Server dispatches requests of one connection to a Handler.
type Server struct {
	handler Handler
	open    atomic.Bool
}

// NewServer creates a server for one connection.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// SessionOpen reports whether a hello has succeeded.
func (s *Server) SessionOpen() bool {
	return s.open.Load()
}

// HandleRequest processes a request and returns the response to send.
func (s *Server) HandleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	if req.Operation != wire.OpHello && !s.open.Load() {
		return errorResponse(req.MessageID, Errorf(wire.StatusNoSession, "hello required"))
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		return errorResponse(req.MessageID, err)
	}
	resp, err := wire.NewResponse(req.MessageID, wire.StatusSuccess, result)
	if err != nil {
		return errorResponse(req.MessageID, err)
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *wire.Request) (any, error) {
	switch req.Operation {
	case wire.OpHello:
		var p wire.HelloPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		if p.Version != wire.ProtocolVersion {
			return nil, Errorf(wire.StatusProtocolMismatch, "unsupported protocol version %d", p.Version)
		}
		resp, err := s.handler.Hello(ctx, p)
		if err != nil {
			return nil, err
		}
		s.open.Store(true)
		return resp, nil

	case wire.OpBrowse:
		var p wire.BrowsePayload
		if len(req.Payload) > 0 {
			if err := decode(req, &p); err != nil {
				return nil, err
			}
		}
		entries, err := s.handler.Browse(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []wire.BrowseEntry{}
		}
		return wire.BrowseResponse{Entries: entries}, nil

	case wire.OpRead:
		var p wire.ReadPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return s.handler.Read(ctx, p.ItemID)

	case wire.OpCreateGroup:
		var p wire.CreateGroupPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return s.handler.CreateGroup(ctx, p.UpdateRate)

	case wire.OpRemoveGroup:
		var p wire.RemoveGroupPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.handler.RemoveGroup(ctx, p.GroupHandle)

	case wire.OpAddItem:
		var p wire.AddItemPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		h, err := s.handler.AddItem(ctx, p)
		if err != nil {
			return nil, err
		}
		return wire.AddItemResponse{ServerHandle: h}, nil

	case wire.OpRemoveItem:
		var p wire.RemoveItemPayload
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.handler.RemoveItem(ctx, p)

	case wire.OpStatus:
		return s.handler.Status(ctx)

	default:
		return nil, Errorf(wire.StatusUnsupported, "unknown operation %d", req.Operation)
	}
}

func decode(req *wire.Request, v any) error {
	if err := req.DecodePayload(v); err != nil {
		return Errorf(wire.StatusInvalidParameter, "%s payload: %v", req.Operation, err)
	}
	return nil
}

func errorResponse(msgID uint32, err error) *wire.Response {
	msg := err.Error()
	var se *StatusError
	if errors.As(err, &se) {
		msg = se.Message
	}
	resp, encErr := wire.NewResponse(msgID, StatusOf(err), wire.ErrorPayload{Message: msg})
	if encErr != nil {
		return &wire.Response{Type: wire.MessageTypeResponse, MessageID: msgID, Status: wire.StatusServerFailure}
	}
	return resp
}
