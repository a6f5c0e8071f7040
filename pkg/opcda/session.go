package opcda

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/interaction"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

type itemKey struct {
	group  uint32
	client uint32
}

// Session is a DA session over one bridge connection.
type Session struct {
	endpoint string
	conn     *transport.Conn
	client   *interaction.Client
	logger   *slog.Logger

	nextHandle atomic.Uint32

	mu      sync.RWMutex
	pushes  map[uint32]backend.PushFunc
	servers map[itemKey]uint32
}

func newSession(endpoint string, conn *transport.Conn, client *interaction.Client, logger *slog.Logger) *Session {
	return &Session{
		endpoint: endpoint,
		conn:     conn,
		client:   client,
		logger:   logger,
		pushes:   make(map[uint32]backend.PushFunc),
		servers:  make(map[itemKey]uint32),
	}
}

func (s *Session) Browse(ctx context.Context, path string) ([]backend.BrowseEntry, error) {
	entries, err := s.client.Browse(ctx, path)
	if err != nil {
		return nil, mapError("browse", err)
	}
	out := make([]backend.BrowseEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, backend.BrowseEntry{
			Name:        e.Name,
			ItemID:      e.ItemID,
			IsBranch:    e.IsBranch,
			DataType:    e.DataType,
			Unit:        e.Unit,
			Description: e.Description,
			Readable:    e.AccessRights&wire.AccessReadable != 0,
			Writable:    e.AccessRights&wire.AccessWritable != 0,
		})
	}
	return out, nil
}

func (s *Session) Read(ctx context.Context, itemID string) (backend.Sample, error) {
	seq := backend.NextSeq()
	v, err := s.client.Read(ctx, itemID)
	if err != nil {
		return backend.Sample{}, mapError("read", err)
	}
	return sample(v, seq), nil
}

func (s *Session) CreateGroup(ctx context.Context, interval time.Duration) (backend.GroupInfo, error) {
	rate := uint32(interval / time.Millisecond)
	resp, err := s.client.CreateGroup(ctx, rate)
	if err != nil {
		return backend.GroupInfo{}, mapError("create group", err)
	}
	granted := time.Duration(resp.RevisedRate) * time.Millisecond
	if granted <= 0 {
		granted = interval
	}
	return backend.GroupInfo{Handle: backend.GroupHandle(resp.GroupHandle), Interval: granted}, nil
}

func (s *Session) RemoveGroup(ctx context.Context, group backend.GroupHandle) error {
	if err := s.client.RemoveGroup(ctx, uint32(group)); err != nil {
		return mapError("remove group", err)
	}
	s.mu.Lock()
	delete(s.pushes, uint32(group))
	for k := range s.servers {
		if k.group == uint32(group) {
			delete(s.servers, k)
		}
	}
	s.mu.Unlock()
	return nil
}

// AddItem returns the client handle, which is what callbacks carry.
func (s *Session) AddItem(ctx context.Context, group backend.GroupHandle, itemID string) (backend.ItemHandle, error) {
	ch := s.nextHandle.Add(1)
	sh, err := s.client.AddItem(ctx, uint32(group), itemID, ch)
	if err != nil {
		return 0, mapError("add item", err)
	}
	s.mu.Lock()
	s.servers[itemKey{uint32(group), ch}] = sh
	s.mu.Unlock()
	return backend.ItemHandle(ch), nil
}

func (s *Session) RemoveItem(ctx context.Context, group backend.GroupHandle, item backend.ItemHandle) error {
	key := itemKey{uint32(group), uint32(item)}
	s.mu.RLock()
	sh, ok := s.servers[key]
	s.mu.RUnlock()
	if !ok {
		return backend.Errorf(backend.KindNotFound, "remove item", "no item handle %d in group %d", item, group)
	}
	if err := s.client.RemoveItem(ctx, uint32(group), sh); err != nil {
		return mapError("remove item", err)
	}
	s.mu.Lock()
	delete(s.servers, key)
	s.mu.Unlock()
	return nil
}

func (s *Session) Subscribe(group backend.GroupHandle, fn backend.PushFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes[uint32(group)] = fn
}

// Status fails unless the DA server reports RUNNING.
func (s *Session) Status(ctx context.Context) error {
	st, err := s.client.Status(ctx)
	if err != nil {
		return mapError("status", err)
	}
	if st.State != wire.ServerRunning {
		return backend.Errorf(backend.KindUnreachable, "status", "server state %s", st.State)
	}
	return nil
}

func (s *Session) Close() error {
	_ = s.client.Close()
	return s.conn.Close()
}

// Done is closed when the bridge connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// ConnID returns the bridge connection ID.
func (s *Session) ConnID() string {
	return s.conn.ConnID()
}

func (s *Session) onMessage(msg []byte) {
	if err := s.client.Dispatch(msg); err != nil {
		s.logger.Debug("DA bridge message dropped", "endpoint", s.endpoint, "error", err)
	}
}

func (s *Session) onDisconnect() {
	s.logger.Debug("DA bridge connection closed", "endpoint", s.endpoint, "cause", s.conn.Err())
	_ = s.client.Close()
}

func (s *Session) onCallback(cb *wire.Callback) {
	seq := backend.NextSeq()
	s.mu.RLock()
	fn := s.pushes[cb.GroupHandle]
	s.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, v := range cb.Items {
		fn(backend.ItemHandle(v.Handle), sample(v, seq))
	}
}

func sample(v wire.ItemValue, seq uint64) backend.Sample {
	return backend.Sample{
		Value:      backend.Normalize(v.Value),
		QualityOK:  backend.DAQualityOK(v.Quality),
		Quality:    uint32(v.Quality),
		SourceTime: v.Timestamp,
		Seq:        seq,
	}
}
