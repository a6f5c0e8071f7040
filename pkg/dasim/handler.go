package dasim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/interaction"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// connSession serves one bridge connection.
type connSession struct {
	sim    *Simulator
	conn   *transport.ServerConn
	server *interaction.Server

	mu         sync.Mutex
	groups     map[uint32]*group
	nextGroup  uint32
	nextHandle uint32
}

func newConnSession(sim *Simulator, conn *transport.ServerConn) *connSession {
	cs := &connSession{sim: sim, conn: conn, groups: make(map[uint32]*group)}
	cs.server = interaction.NewServer(cs)
	return cs
}

func (cs *connSession) handleMessage(data []byte) {
	mt, err := wire.PeekMessageType(data)
	if err != nil || mt != wire.MessageTypeRequest {
		cs.sim.logger.Debug("simulator dropped message", "conn", cs.conn.ConnID(), "type", mt, "error", err)
		return
	}
	req, err := wire.DecodeRequest(data)
	if err != nil {
		cs.sim.logger.Debug("simulator dropped request", "conn", cs.conn.ConnID(), "error", err)
		return
	}

	if d := cs.sim.ResponseDelay(); d > 0 {
		select {
		case <-time.After(d):
		case <-cs.conn.Context().Done():
			return
		}
	}

	resp := cs.server.HandleRequest(cs.conn.Context(), req)
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		cs.sim.logger.Warn("simulator response encoding failed", "op", req.Operation, "error", err)
		return
	}
	_ = cs.conn.Send(out)
}

func (cs *connSession) sendCallback(cb *wire.Callback) {
	data, err := wire.EncodeCallback(cb)
	if err != nil {
		cs.sim.logger.Warn("simulator callback encoding failed", "group", cb.GroupHandle, "error", err)
		return
	}
	_ = cs.conn.Send(data)
}

func (cs *connSession) recordChange(itemID string) {
	cs.mu.Lock()
	groups := make([]*group, 0, len(cs.groups))
	for _, g := range cs.groups {
		groups = append(groups, g)
	}
	cs.mu.Unlock()
	for _, g := range groups {
		g.recordChange(itemID)
	}
}

func (cs *connSession) close() {
	cs.mu.Lock()
	groups := cs.groups
	cs.groups = make(map[uint32]*group)
	cs.mu.Unlock()
	for _, g := range groups {
		g.stop()
	}
}

func (cs *connSession) groupCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.groups)
}

func (cs *connSession) Hello(_ context.Context, p wire.HelloPayload) (*wire.HelloResponse, error) {
	if !cs.sim.hasProgID(p.ProgID) {
		return nil, interaction.Errorf(wire.StatusProtocolMismatch, "unknown ProgID %q", p.ProgID)
	}
	if err := cs.sim.authenticate(p); err != nil {
		return nil, err
	}
	return &wire.HelloResponse{
		SessionID:  uuid.NewString(),
		ServerName: p.ProgID,
		Vendor:     cs.sim.config.Vendor,
	}, nil
}

func (cs *connSession) Browse(_ context.Context, path string) ([]wire.BrowseEntry, error) {
	entries, ok := cs.sim.space.Browse(path)
	if !ok {
		return nil, interaction.Errorf(wire.StatusNotFound, "no branch %q", path)
	}
	return entries, nil
}

func (cs *connSession) Read(_ context.Context, itemID string) (wire.ItemValue, error) {
	it, err := cs.sim.readable(itemID)
	if err != nil {
		return wire.ItemValue{}, err
	}
	return wire.ItemValue{Value: it.Value, Quality: it.Quality, Timestamp: it.Timestamp}, nil
}

func (cs *connSession) CreateGroup(_ context.Context, rate uint32) (wire.CreateGroupResponse, error) {
	revised := cs.sim.reviseRate(time.Duration(rate) * time.Millisecond)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if limit := cs.sim.config.MaxGroups; limit > 0 && len(cs.groups) >= limit {
		return wire.CreateGroupResponse{}, interaction.Errorf(wire.StatusServerFailure, "group limit %d reached", limit)
	}
	cs.nextGroup++
	h := cs.nextGroup
	cs.groups[h] = newGroup(h, revised, cs.sim.space, cs.sendCallback)
	return wire.CreateGroupResponse{GroupHandle: h, RevisedRate: uint32(revised / time.Millisecond)}, nil
}

func (cs *connSession) RemoveGroup(_ context.Context, handle uint32) error {
	cs.mu.Lock()
	g, ok := cs.groups[handle]
	delete(cs.groups, handle)
	cs.mu.Unlock()
	if !ok {
		return interaction.Errorf(wire.StatusNotFound, "no group %d", handle)
	}
	g.stop()
	return nil
}

func (cs *connSession) AddItem(_ context.Context, p wire.AddItemPayload) (uint32, error) {
	if _, err := cs.sim.readable(p.ItemID); err != nil {
		return 0, err
	}
	cs.mu.Lock()
	g, ok := cs.groups[p.GroupHandle]
	if !ok {
		cs.mu.Unlock()
		return 0, interaction.Errorf(wire.StatusNotFound, "no group %d", p.GroupHandle)
	}
	cs.nextHandle++
	h := cs.nextHandle
	cs.mu.Unlock()

	g.add(h, member{itemID: p.ItemID, clientHandle: p.ClientHandle})
	return h, nil
}

func (cs *connSession) RemoveItem(_ context.Context, p wire.RemoveItemPayload) error {
	cs.mu.Lock()
	g, ok := cs.groups[p.GroupHandle]
	cs.mu.Unlock()
	if !ok {
		return interaction.Errorf(wire.StatusNotFound, "no group %d", p.GroupHandle)
	}
	if !g.remove(p.ServerHandle) {
		return interaction.Errorf(wire.StatusNotFound, "no item %d in group %d", p.ServerHandle, p.GroupHandle)
	}
	return nil
}

func (cs *connSession) Status(context.Context) (wire.StatusResponse, error) {
	return wire.StatusResponse{
		State:       cs.sim.State(),
		StartTime:   cs.sim.started,
		CurrentTime: time.Now(),
		Vendor:      cs.sim.config.Vendor,
		GroupCount:  uint32(cs.groupCount()),
	}, nil
}
