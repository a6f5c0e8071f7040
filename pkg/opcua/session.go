package opcua

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// notifyBuffer is the per-subscription notification channel size.
const notifyBuffer = 64

// maxBrowseContinuations caps BrowseNext round trips for one branch.
const maxBrowseContinuations = 32

// AccessLevel bits.
const (
	accessCurrentRead  = 0x01
	accessCurrentWrite = 0x02
)

// stateRunning is ServerState.Running.
const stateRunning = 0

// client is the subset of *opcua.Client a Session uses.
type client interface {
	Browse(ctx context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error)
	BrowseNext(ctx context.Context, req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error)
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notifyCh chan<- *opcua.PublishNotificationData) (*opcua.Subscription, error)
	Close(ctx context.Context) error
}

// Session is a UA backend session.
type Session struct {
	endpoint string
	client   client
	logger   *slog.Logger

	// life owns the connection and its subscriptions.
	life   context.Context
	cancel context.CancelFunc

	nextHandle atomic.Uint32

	mu     sync.Mutex
	groups map[backend.GroupHandle]*uaGroup
}

// uaGroup is one UA subscription.
type uaGroup struct {
	sub      *opcua.Subscription
	interval time.Duration
	notify   chan *opcua.PublishNotificationData
	done     chan struct{}

	mu    sync.Mutex
	push  backend.PushFunc
	items map[backend.ItemHandle]uint32 // client handle -> monitored item id
}

func newSession(endpoint string, c client, life context.Context, cancel context.CancelFunc, logger *slog.Logger) *Session {
	if logger == nil {
		logger = discard()
	}
	return &Session{
		endpoint: endpoint,
		client:   c,
		logger:   logger,
		life:     life,
		cancel:   cancel,
		groups:   make(map[backend.GroupHandle]*uaGroup),
	}
}

// Browse lists the hierarchical children of the node named by path.
func (s *Session) Browse(ctx context.Context, path string) ([]backend.BrowseEntry, error) {
	nid, err := nodeID(path)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Browse(ctx, &ua.BrowseRequest{
		View:                          &ua.ViewDescription{ViewID: ua.NewTwoByteNodeID(0)},
		RequestedMaxReferencesPerNode: 0,
		NodesToBrowse: []*ua.BrowseDescription{{
			NodeID:          nid,
			BrowseDirection: ua.BrowseDirectionForward,
			ReferenceTypeID: ua.NewNumericNodeID(0, id.HierarchicalReferences),
			IncludeSubtypes: true,
			NodeClassMask:   uint32(ua.NodeClassObject | ua.NodeClassVariable),
			ResultMask:      uint32(ua.BrowseResultMaskAll),
		}},
	})
	if err != nil {
		return nil, mapError("browse", err)
	}
	if len(resp.Results) != 1 {
		return nil, backend.Errorf(backend.KindProtocolMismatch, "browse", "expected 1 browse result, got %d", len(resp.Results))
	}

	res := resp.Results[0]
	if res.StatusCode != ua.StatusOK {
		return nil, mapError("browse", res.StatusCode)
	}
	refs := res.References
	cp := res.ContinuationPoint
	for i := 0; len(cp) > 0 && i < maxBrowseContinuations; i++ {
		next, err := s.client.BrowseNext(ctx, &ua.BrowseNextRequest{ContinuationPoints: [][]byte{cp}})
		if err != nil {
			return nil, mapError("browse", err)
		}
		if len(next.Results) != 1 || next.Results[0].StatusCode != ua.StatusOK {
			break
		}
		refs = append(refs, next.Results[0].References...)
		cp = next.Results[0].ContinuationPoint
	}

	entries := make([]backend.BrowseEntry, 0, len(refs))
	var vars []int
	for _, ref := range refs {
		if ref.NodeID == nil || ref.NodeID.NodeID == nil {
			continue
		}
		e := backend.BrowseEntry{
			Name:     browseName(ref),
			ItemID:   ref.NodeID.NodeID.String(),
			IsBranch: ref.NodeClass == ua.NodeClassObject,
		}
		if ref.NodeClass == ua.NodeClassVariable {
			vars = append(vars, len(entries))
		}
		entries = append(entries, e)
	}
	if len(vars) > 0 {
		s.describe(ctx, entries, vars)
	}
	return entries, nil
}

// describe fills data type and access rights of variable entries. Failures
// leave the entries undescribed.
func (s *Session) describe(ctx context.Context, entries []backend.BrowseEntry, vars []int) {
	req := &ua.ReadRequest{TimestampsToReturn: ua.TimestampsToReturnNeither}
	for _, i := range vars {
		nid, err := ua.ParseNodeID(entries[i].ItemID)
		if err != nil {
			return
		}
		req.NodesToRead = append(req.NodesToRead,
			&ua.ReadValueID{NodeID: nid, AttributeID: ua.AttributeIDDataType},
			&ua.ReadValueID{NodeID: nid, AttributeID: ua.AttributeIDUserAccessLevel},
		)
	}
	resp, err := s.client.Read(ctx, req)
	if err != nil || len(resp.Results) != 2*len(vars) {
		s.logger.Debug("UA browse attribute read failed", "endpoint", s.endpoint, "error", err)
		return
	}
	for n, i := range vars {
		if dv := resp.Results[2*n]; dv != nil && dv.Status == ua.StatusOK && dv.Value != nil {
			if t, ok := dv.Value.Value().(*ua.NodeID); ok {
				entries[i].DataType = dataTypeName(t)
			}
		}
		if dv := resp.Results[2*n+1]; dv != nil && dv.Status == ua.StatusOK && dv.Value != nil {
			if lvl, ok := dv.Value.Value().(byte); ok {
				entries[i].Readable = lvl&accessCurrentRead != 0
				entries[i].Writable = lvl&accessCurrentWrite != 0
			}
		}
	}
}

// Read performs a device read (MaxAge 0) of the Value attribute.
func (s *Session) Read(ctx context.Context, itemID string) (backend.Sample, error) {
	nid, err := itemNodeID(itemID)
	if err != nil {
		return backend.Sample{}, err
	}
	seq := backend.NextSeq()
	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        []*ua.ReadValueID{{NodeID: nid, AttributeID: ua.AttributeIDValue}},
	})
	if err != nil {
		return backend.Sample{}, mapError("read", err)
	}
	if len(resp.Results) != 1 || resp.Results[0] == nil {
		return backend.Sample{}, backend.Errorf(backend.KindProtocolMismatch, "read", "expected 1 read result, got %d", len(resp.Results))
	}
	dv := resp.Results[0]
	if itemFailure(dv.Status) {
		return backend.Sample{}, mapError("read", dv.Status)
	}
	return sample(dv, seq), nil
}

// CreateGroup creates a subscription publishing at interval.
func (s *Session) CreateGroup(ctx context.Context, interval time.Duration) (backend.GroupInfo, error) {
	g := &uaGroup{
		interval: interval,
		notify:   make(chan *opcua.PublishNotificationData, notifyBuffer),
		done:     make(chan struct{}),
		items:    make(map[backend.ItemHandle]uint32),
	}
	params := &opcua.SubscriptionParameters{Interval: interval}

	var sub *opcua.Subscription
	err := await(ctx, func() error {
		var err error
		sub, err = s.client.Subscribe(s.life, params, g.notify)
		return err
	}, func() {
		if sub != nil {
			_ = sub.Cancel(context.Background())
		}
	})
	if err != nil {
		return backend.GroupInfo{}, mapError("create group", err)
	}
	g.sub = sub

	revised := sub.RevisedPublishingInterval
	if revised <= 0 {
		revised = interval
	}
	h := backend.GroupHandle(sub.SubscriptionID)

	s.mu.Lock()
	s.groups[h] = g
	s.mu.Unlock()
	go s.deliver(h, g)

	s.logger.Debug("UA subscription created", "endpoint", s.endpoint, "id", sub.SubscriptionID,
		"requested", interval, "revised", revised)
	return backend.GroupInfo{Handle: h, Interval: revised}, nil
}

// RemoveGroup deletes the subscription and all its monitored items.
func (s *Session) RemoveGroup(ctx context.Context, group backend.GroupHandle) error {
	s.mu.Lock()
	g, ok := s.groups[group]
	delete(s.groups, group)
	s.mu.Unlock()
	if !ok {
		return backend.Errorf(backend.KindNotFound, "remove group", "no subscription %d", group)
	}
	close(g.done)
	return mapError("remove group", g.sub.Cancel(ctx))
}

// AddItem creates a monitored item sampling at the group interval.
func (s *Session) AddItem(ctx context.Context, group backend.GroupHandle, itemID string) (backend.ItemHandle, error) {
	g, err := s.group(group, "add item")
	if err != nil {
		return 0, err
	}
	nid, err := itemNodeID(itemID)
	if err != nil {
		return 0, err
	}

	h := s.nextHandle.Add(1)
	req := opcua.NewMonitoredItemCreateRequestWithDefaults(nid, ua.AttributeIDValue, h)
	req.RequestedParameters.SamplingInterval = float64(g.interval / time.Millisecond)

	resp, err := g.sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return 0, mapError("add item", err)
	}
	if len(resp.Results) != 1 {
		return 0, backend.Errorf(backend.KindProtocolMismatch, "add item", "expected 1 monitor result, got %d", len(resp.Results))
	}
	if code := resp.Results[0].StatusCode; code != ua.StatusOK {
		return 0, mapError("add item", code)
	}

	g.mu.Lock()
	g.items[backend.ItemHandle(h)] = resp.Results[0].MonitoredItemID
	g.mu.Unlock()
	return backend.ItemHandle(h), nil
}

// RemoveItem deletes a monitored item.
func (s *Session) RemoveItem(ctx context.Context, group backend.GroupHandle, item backend.ItemHandle) error {
	g, err := s.group(group, "remove item")
	if err != nil {
		return err
	}
	g.mu.Lock()
	mid, ok := g.items[item]
	delete(g.items, item)
	g.mu.Unlock()
	if !ok {
		return backend.Errorf(backend.KindNotFound, "remove item", "no item %d in subscription %d", item, group)
	}

	resp, err := g.sub.Unmonitor(ctx, mid)
	if err != nil {
		return mapError("remove item", err)
	}
	if len(resp.Results) == 1 && resp.Results[0] != ua.StatusOK {
		return mapError("remove item", resp.Results[0])
	}
	return nil
}

// Subscribe registers fn for the data changes of group.
func (s *Session) Subscribe(group backend.GroupHandle, fn backend.PushFunc) {
	s.mu.Lock()
	g, ok := s.groups[group]
	s.mu.Unlock()
	if !ok {
		return
	}
	g.mu.Lock()
	g.push = fn
	g.mu.Unlock()
}

// Status reads Server.ServerStatus.State and reports anything but Running
// as Unreachable.
func (s *Session) Status(ctx context.Context) error {
	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnNeither,
		NodesToRead: []*ua.ReadValueID{{
			NodeID:      ua.NewNumericNodeID(0, id.Server_ServerStatus_State),
			AttributeID: ua.AttributeIDValue,
		}},
	})
	if err != nil {
		return mapError("status", err)
	}
	if len(resp.Results) != 1 || resp.Results[0] == nil {
		return backend.Errorf(backend.KindProtocolMismatch, "status", "expected 1 read result, got %d", len(resp.Results))
	}
	dv := resp.Results[0]
	if dv.Status != ua.StatusOK {
		return mapError("status", dv.Status)
	}
	if dv.Value == nil {
		return backend.Errorf(backend.KindProtocolMismatch, "status", "server state missing")
	}
	return serverState(dv.Value.Value())
}

// Close cancels every subscription and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	groups := s.groups
	s.groups = make(map[backend.GroupHandle]*uaGroup)
	s.mu.Unlock()
	for _, g := range groups {
		close(g.done)
	}
	err := s.client.Close(context.Background())
	s.cancel()
	return err
}

func (s *Session) group(h backend.GroupHandle, op string) (*uaGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[h]
	if !ok {
		return nil, backend.Errorf(backend.KindNotFound, op, "no subscription %d", h)
	}
	return g, nil
}

// deliver forwards data change notifications of one subscription until the
// group is removed or the session ends.
func (s *Session) deliver(h backend.GroupHandle, g *uaGroup) {
	for {
		select {
		case <-g.done:
			return
		case <-s.life.Done():
			return
		case n := <-g.notify:
			if n == nil {
				continue
			}
			if n.Error != nil {
				s.logger.Debug("UA publish error", "endpoint", s.endpoint, "subscription", h, "error", n.Error)
				continue
			}
			s.dispatch(g, n.Value)
		}
	}
}

func (s *Session) dispatch(g *uaGroup, v any) {
	switch x := v.(type) {
	case *ua.DataChangeNotification:
		seq := backend.NextSeq()
		g.mu.Lock()
		fn := g.push
		g.mu.Unlock()
		if fn == nil {
			return
		}
		for _, item := range x.MonitoredItems {
			if item == nil || item.Value == nil {
				continue
			}
			fn(backend.ItemHandle(item.ClientHandle), sample(item.Value, seq))
		}
	case *ua.StatusChangeNotification:
		s.logger.Info("UA subscription status changed", "endpoint", s.endpoint, "status", x.Status)
	}
}

func sample(dv *ua.DataValue, seq uint64) backend.Sample {
	var v any
	if dv.Value != nil {
		v = dv.Value.Value()
	}
	return backend.Sample{
		Value:      backend.Normalize(v),
		QualityOK:  backend.UAStatusOK(uint32(dv.Status)),
		Quality:    uint32(dv.Status),
		SourceTime: dv.SourceTimestamp,
		Seq:        seq,
	}
}

// nodeID parses a browse path; the empty path is the Objects folder.
func nodeID(path string) (*ua.NodeID, error) {
	if path == "" {
		return ua.NewNumericNodeID(0, id.ObjectsFolder), nil
	}
	return itemNodeID(path)
}

func itemNodeID(itemID string) (*ua.NodeID, error) {
	nid, err := ua.ParseNodeID(itemID)
	if err != nil {
		return nil, backend.Errorf(backend.KindNotFound, "parse", "invalid node id %q: %v", itemID, err)
	}
	return nid, nil
}

func browseName(ref *ua.ReferenceDescription) string {
	if ref.BrowseName != nil && ref.BrowseName.Name != "" {
		return ref.BrowseName.Name
	}
	if ref.DisplayName != nil {
		return ref.DisplayName.Text
	}
	return ref.NodeID.NodeID.String()
}

var builtinTypes = map[uint32]string{
	id.Boolean:    "Boolean",
	id.SByte:      "SByte",
	id.Byte:       "Byte",
	id.Int16:      "Int16",
	id.UInt16:     "UInt16",
	id.Int32:      "Int32",
	id.UInt32:     "UInt32",
	id.Int64:      "Int64",
	id.UInt64:     "UInt64",
	id.Float:      "Float",
	id.Double:     "Double",
	id.String:     "String",
	id.DateTime:   "DateTime",
	id.ByteString: "ByteString",
}

func dataTypeName(t *ua.NodeID) string {
	if t.Namespace() == 0 {
		if name, ok := builtinTypes[t.IntID()]; ok {
			return name
		}
	}
	return t.String()
}

// serverState maps a ServerState enumeration value.
func serverState(v any) error {
	var state int64
	switch x := v.(type) {
	case int32:
		state = int64(x)
	case uint32:
		state = int64(x)
	default:
		return backend.Errorf(backend.KindProtocolMismatch, "status", "unexpected server state type %T", v)
	}
	if state != stateRunning {
		return backend.Errorf(backend.KindUnreachable, "status", "server state %s", serverStateName(state))
	}
	return nil
}

func serverStateName(state int64) string {
	switch state {
	case 0:
		return "RUNNING"
	case 1:
		return "FAILED"
	case 2:
		return "NO_CONFIGURATION"
	case 3:
		return "SUSPENDED"
	case 4:
		return "SHUTDOWN"
	case 5:
		return "TEST"
	case 6:
		return "COMMUNICATION_FAULT"
	}
	return fmt.Sprintf("UNKNOWN(%d)", state)
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
