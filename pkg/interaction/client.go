package interaction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// RequestSender sends an encoded message over a connection.
type RequestSender interface {
	Send(data []byte) error
}

// Client issues DA bridge requests and routes replies.
type Client struct {
	sender RequestSender

	mu              sync.RWMutex
	timeout         time.Duration
	callbackHandler func(*wire.Callback)
	closed          bool

	nextMsgID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Response

	logger   log.Logger
	connID   string
	endpoint string
}

// NewClient creates a client that sends through sender.
func NewClient(sender RequestSender) *Client {
	return &Client{
		sender:  sender,
		timeout: 10 * time.Second,
		pending: make(map[uint32]chan *wire.Response),
	}
}

// SetTimeout sets the per-request timeout applied when ctx has no earlier
// deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// SetCallbackHandler sets the handler for group data change callbacks.
// The handler runs on the connection's read goroutine.
func (c *Client) SetCallbackHandler(handler func(*wire.Callback)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbackHandler = handler
}

// SetLogger configures wire-layer protocol capture. Call before use.
func (c *Client) SetLogger(logger log.Logger, connID, endpoint string) {
	c.logger = logger
	c.connID = connID
	c.endpoint = endpoint
}

// Close fails all pending requests with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	return nil
}

// Dispatch routes one received frame to the waiting request or the callback
// handler.
func (c *Client) Dispatch(data []byte) error {
	mt, err := wire.PeekMessageType(data)
	if err != nil {
		return err
	}
	switch mt {
	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			return err
		}
		return c.HandleResponse(resp)
	case wire.MessageTypeCallback:
		cb, err := wire.DecodeCallback(data)
		if err != nil {
			return err
		}
		c.HandleCallback(cb)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, mt)
	}
}

// HandleResponse delivers a response to its pending request.
func (c *Client) HandleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.MessageID]
	if ok {
		delete(c.pending, resp.MessageID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return ErrUnexpectedReply
	}
	ch <- resp
	return nil
}

// HandleCallback passes a callback to the registered handler.
func (c *Client) HandleCallback(cb *wire.Callback) {
	c.logMessage(log.DirectionIn, &log.MessageEvent{Type: wire.MessageTypeCallback, GroupHandle: &cb.GroupHandle})

	c.mu.RLock()
	handler := c.callbackHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(cb)
	}
}

// Call sends op with payload and decodes a successful response payload into
// out (which may be nil).
func (c *Client) Call(ctx context.Context, op wire.Operation, payload, out any) error {
	c.mu.RLock()
	closed, timeout := c.closed, c.timeout
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	msgID := c.nextMsgID.Add(1)
	if msgID == 0 {
		msgID = c.nextMsgID.Add(1)
	}
	req, err := wire.NewRequest(msgID, op, payload)
	if err != nil {
		return err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	respCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	start := time.Now()
	if err := c.sender.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}
	c.logMessage(log.DirectionOut, &log.MessageEvent{Type: wire.MessageTypeRequest, MessageID: msgID, Operation: &op})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resp *wire.Response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%s: %w", op, ErrRequestTimeout)
	case r, ok := <-respCh:
		if !ok {
			return ErrClientClosed
		}
		resp = r
	}

	elapsed := time.Since(start)
	c.logMessage(log.DirectionIn, &log.MessageEvent{
		Type:           wire.MessageTypeResponse,
		MessageID:      msgID,
		Status:         &resp.Status,
		ProcessingTime: &elapsed,
	})

	if !resp.IsSuccess() {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodePayload(out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrUnexpectedReply, op, err)
	}
	return nil
}

// Hello opens a session on progID. An empty user skips authentication.
func (c *Client) Hello(ctx context.Context, progID, user string, secret []byte) (*wire.HelloResponse, error) {
	p := wire.HelloPayload{Version: wire.ProtocolVersion, ProgID: progID, User: user}
	if user != "" {
		nonce, err := NewNonce()
		if err != nil {
			return nil, err
		}
		p.Nonce = nonce
		p.Proof = ComputeProof(secret, nonce, user)
	}
	var resp wire.HelloResponse
	if err := c.Call(ctx, wire.OpHello, p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Browse lists the children of path.
func (c *Client) Browse(ctx context.Context, path string) ([]wire.BrowseEntry, error) {
	var resp wire.BrowseResponse
	if err := c.Call(ctx, wire.OpBrowse, wire.BrowsePayload{Path: path}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Read performs a synchronous device read.
func (c *Client) Read(ctx context.Context, itemID string) (wire.ItemValue, error) {
	var v wire.ItemValue
	err := c.Call(ctx, wire.OpRead, wire.ReadPayload{ItemID: itemID}, &v)
	return v, err
}

// CreateGroup creates a group at rate milliseconds.
func (c *Client) CreateGroup(ctx context.Context, rate uint32) (wire.CreateGroupResponse, error) {
	var resp wire.CreateGroupResponse
	err := c.Call(ctx, wire.OpCreateGroup, wire.CreateGroupPayload{UpdateRate: rate}, &resp)
	return resp, err
}

// RemoveGroup releases a group.
func (c *Client) RemoveGroup(ctx context.Context, group uint32) error {
	return c.Call(ctx, wire.OpRemoveGroup, wire.RemoveGroupPayload{GroupHandle: group}, nil)
}

// AddItem adds itemID to group and returns the server item handle.
func (c *Client) AddItem(ctx context.Context, group uint32, itemID string, clientHandle uint32) (uint32, error) {
	var resp wire.AddItemResponse
	err := c.Call(ctx, wire.OpAddItem, wire.AddItemPayload{GroupHandle: group, ItemID: itemID, ClientHandle: clientHandle}, &resp)
	return resp.ServerHandle, err
}

// RemoveItem removes an item from group.
func (c *Client) RemoveItem(ctx context.Context, group, serverHandle uint32) error {
	return c.Call(ctx, wire.OpRemoveItem, wire.RemoveItemPayload{GroupHandle: group, ServerHandle: serverHandle}, nil)
}

// Status returns the DA server status.
func (c *Client) Status(ctx context.Context) (wire.StatusResponse, error) {
	var resp wire.StatusResponse
	err := c.Call(ctx, wire.OpStatus, nil, &resp)
	return resp, err
}

func (c *Client) logMessage(dir log.Direction, ev *log.MessageEvent) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Endpoint:     c.endpoint,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      ev,
	})
}
