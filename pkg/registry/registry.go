package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/stats"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/subscription"
)

// DefaultMinInterval is the interval floor when none is configured.
const DefaultMinInterval = 100 * time.Millisecond

// SessionSource returns the live session of an endpoint. *backend.Pool
// implements it.
type SessionSource interface {
	Get(ctx context.Context, endpoint string) (backend.Session, error)
}

// downReporter is implemented by session sources that track lost
// connections. *backend.Pool implements it.
type downReporter interface {
	Down(endpoint string) bool
}

// Config configures a Registry.
type Config struct {
	Sessions SessionSource

	// GroupSizeLimit caps the items per subscription group (default: 40).
	GroupSizeLimit int

	// MinInterval floors every requested interval (default: 100ms).
	MinInterval time.Duration

	// Stats receives hit, miss and push counts (optional).
	Stats *stats.Counters

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Registry is the tag registry of one protocol family.
type Registry struct {
	cfg    Config
	logger *slog.Logger
	stats  *stats.Counters

	mu   sync.Mutex
	tags map[Key]*entry
	sets map[string]*subscription.Set

	// timeNow is injectable for tests.
	timeNow func() time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.GroupSizeLimit <= 0 {
		cfg.GroupSizeLimit = subscription.DefaultGroupSizeLimit
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	st := cfg.Stats
	if st == nil {
		st = &stats.Counters{}
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		stats:   st,
		tags:    make(map[Key]*entry),
		sets:    make(map[string]*subscription.Set),
		timeNow: time.Now,
	}
}

// NormalizeInterval rounds d to whole milliseconds and floors it at the
// minimum interval.
func (r *Registry) NormalizeInterval(d time.Duration) time.Duration {
	d = d.Round(time.Millisecond)
	if d < r.cfg.MinInterval {
		return r.cfg.MinInterval
	}
	return d
}

// EnsureFreshAndGet returns the value of itemID on endpoint, subscribing it
// at interval when no faster subscription exists. A cached value is
// returned without backend I/O when the tag is already subscribed at
// interval or faster.
//
// On failure before the item joined a group nothing is registered, so the
// next call retries from scratch. When only the initial read failed the tag
// stays subscribed and the next call retries the read.
func (r *Registry) EnsureFreshAndGet(ctx context.Context, endpoint, itemID string, interval time.Duration) (Tag, error) {
	if itemID == "" {
		return Tag{}, &backend.Error{Kind: backend.KindNotFound, Op: "read", Endpoint: endpoint, Detail: "empty item id"}
	}
	interval = r.NormalizeInterval(interval)
	key := Key{Endpoint: endpoint, ItemID: itemID}

	for {
		r.redial(ctx, endpoint)
		e := r.claim(key)
		if tag, ok := e.serve(interval, r.timeNow()); ok {
			r.stats.Hits.Add(1)
			return tag, nil
		}

		e.op.Lock()
		e.mu.Lock()
		removed := e.removed
		e.mu.Unlock()
		if removed {
			// Evicted or dropped while we waited; start over on a new entry.
			e.op.Unlock()
			continue
		}
		// Another caller may have completed the work while we waited.
		if tag, ok := e.serve(interval, r.timeNow()); ok {
			e.op.Unlock()
			r.stats.Hits.Add(1)
			return tag, nil
		}

		r.stats.Misses.Add(1)
		tag, err := r.refresh(ctx, e, interval)
		e.op.Unlock()
		if err != nil {
			r.stats.Failures.Add(1)
		}
		return tag, err
	}
}

// redial gives an endpoint that lost its session the lazy reconnect that
// cache hits would otherwise skip. While the redial is backing off, cached
// values keep being served with their old timestamps.
func (r *Registry) redial(ctx context.Context, endpoint string) {
	dr, ok := r.cfg.Sessions.(downReporter)
	if !ok || !dr.Down(endpoint) {
		return
	}
	if _, err := r.cfg.Sessions.Get(ctx, endpoint); err != nil {
		r.logger.Debug("redial failed, serving cached values", "endpoint", endpoint, "error", err)
	}
}

// claim returns the entry of key, inserting a placeholder when absent.
func (r *Registry) claim(key Key) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tags[key]
	if !ok {
		e = &entry{key: key, lastRequested: r.timeNow()}
		r.tags[key] = e
	}
	return e
}

// refresh subscribes e at interval if needed and reads its current value.
// Caller holds e.op.
func (r *Registry) refresh(ctx context.Context, e *entry, interval time.Duration) (Tag, error) {
	key := e.key
	sess, err := r.cfg.Sessions.Get(ctx, key.Endpoint)
	if err != nil {
		r.abandon(e)
		return Tag{}, err
	}
	set := r.set(key.Endpoint)

	e.mu.Lock()
	groupID, requested := e.groupID, e.requested
	e.mu.Unlock()

	if groupID != 0 {
		if g := set.Get(groupID); g == nil || !g.Contains(key.ItemID) {
			groupID = 0
		}
	}

	upgrade := groupID != 0 && interval < requested
	if upgrade {
		if err := set.Release(ctx, groupID, key.ItemID); err != nil {
			// The backend may still deliver the old group's updates, so
			// joining a second group could double the streams for one item.
			r.logger.Debug("release before upgrade failed", "tag", key, "error", err)
			r.drop(e)
			return Tag{}, err
		}
		groupID = 0
		e.mu.Lock()
		e.groupID = 0
		e.mu.Unlock()
	}

	if groupID == 0 {
		g, err := set.Acquire(ctx, sess, key.ItemID, interval)
		if err != nil {
			r.drop(e)
			return Tag{}, err
		}
		e.mu.Lock()
		e.groupID = g.ID
		e.requested = interval
		e.granted = g.Interval()
		e.mu.Unlock()

		action := log.TagCreated
		if upgrade {
			action = log.TagUpgraded
			r.stats.Upgrades.Add(1)
		}
		r.logTag(action, key, interval, g.ID)
		r.logger.Debug("tag subscribed", "tag", key, "interval", interval, "granted", g.Interval(), "group", g.ID, "upgrade", upgrade)
	}

	s, err := sess.Read(ctx, key.ItemID)
	now := r.timeNow()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRequested = now
	if err != nil {
		return Tag{}, err
	}
	e.store(s, now)
	return e.snapshot(), nil
}

// abandon removes e from the index when it holds no group membership.
// Caller holds e.op.
func (r *Registry) abandon(e *entry) {
	e.mu.Lock()
	member := e.groupID != 0
	e.mu.Unlock()
	if !member {
		r.drop(e)
	}
}

// drop removes e from the index. Group membership is not touched.
func (r *Registry) drop(e *entry) {
	r.mu.Lock()
	if cur, ok := r.tags[e.key]; ok && cur == e {
		delete(r.tags, e.key)
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.removed = true
	e.groupID = 0
	e.mu.Unlock()
}

// set returns the group set of endpoint, creating it on first use.
func (r *Registry) set(endpoint string) *subscription.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[endpoint]
	if !ok {
		s = subscription.NewSet(subscription.Config{
			Endpoint: endpoint,
			Limit:    r.cfg.GroupSizeLimit,
			Sink: func(groupID uint64, itemID string, smp backend.Sample) {
				r.Apply(Key{Endpoint: endpoint, ItemID: itemID}, groupID, smp)
			},
			Logger:         r.logger,
			ProtocolLogger: r.cfg.ProtocolLogger,
		})
		r.sets[endpoint] = s
	}
	return s
}

// Apply stores a pushed sample for key delivered by group groupID. Samples
// for unknown tags, from a group the tag no longer belongs to, or older than
// the stored value are discarded. It reports whether the sample was stored.
func (r *Registry) Apply(key Key, groupID uint64, s backend.Sample) bool {
	r.mu.Lock()
	e, ok := r.tags[key]
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.groupID != groupID || !e.store(s, r.timeNow()) {
		r.stats.Stale.Add(1)
		return false
	}
	r.stats.Pushes.Add(1)
	return true
}

// Rebind moves the groups of endpoint to sess after a reconnect. Values
// cached before the reconnect are read through once more. Tags whose item
// the new session rejected lose their membership and resubscribe on their
// next read.
func (r *Registry) Rebind(ctx context.Context, endpoint string, sess backend.Session) error {
	r.mu.Lock()
	set, ok := r.sets[endpoint]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	dropped, err := set.Rebind(ctx, sess)
	for _, e := range r.entries() {
		if e.key.Endpoint != endpoint {
			continue
		}
		e.mu.Lock()
		e.stale = true
		e.mu.Unlock()
	}
	for groupID, items := range dropped {
		for _, id := range items {
			r.mu.Lock()
			e, ok := r.tags[Key{Endpoint: endpoint, ItemID: id}]
			r.mu.Unlock()
			if !ok {
				continue
			}
			// op may be held by the caller whose Get triggered this rebind,
			// so only the membership is cleared here.
			e.mu.Lock()
			if e.groupID == groupID {
				e.groupID = 0
			}
			e.mu.Unlock()
		}
	}
	r.logger.Info("subscription groups rebound", "endpoint", endpoint, "groups", set.Len(), "error", err)
	return err
}

// Get returns the tag of key without touching its request time.
func (r *Registry) Get(key Key) (Tag, bool) {
	r.mu.Lock()
	e, ok := r.tags[key]
	r.mu.Unlock()
	if !ok {
		return Tag{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.groupID == 0 {
		return Tag{}, false
	}
	return e.snapshot(), true
}

// Snapshot returns all subscribed tags ordered by key.
func (r *Registry) Snapshot() []Tag {
	var out []Tag
	for _, e := range r.entries() {
		e.mu.Lock()
		if !e.removed && e.groupID != 0 {
			out = append(out, e.snapshot())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// Len returns the number of subscribed tags.
func (r *Registry) Len() int {
	return len(r.Snapshot())
}

// Groups returns the subscription groups of endpoint.
func (r *Registry) Groups(endpoint string) []subscription.Info {
	r.mu.Lock()
	set, ok := r.sets[endpoint]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	var out []subscription.Info
	for _, g := range set.List() {
		out = append(out, g.Info())
	}
	return out
}

// Clear unsubscribes and removes every tag. It returns the number removed.
func (r *Registry) Clear(ctx context.Context) int {
	n := 0
	for _, e := range r.entries() {
		e.op.Lock()
		if r.remove(ctx, e) {
			r.logTag(log.TagDropped, e.key, 0, 0)
			n++
		}
		e.op.Unlock()
	}
	r.logger.Info("registry cleared", "tags", n)
	return n
}

// DropEndpoint removes every tag of endpoint and forgets its groups without
// backend calls, for use when its session is being closed. It returns the
// number of tags removed.
func (r *Registry) DropEndpoint(endpoint string) int {
	n := 0
	for _, e := range r.entries() {
		if e.key.Endpoint != endpoint {
			continue
		}
		e.op.Lock()
		e.mu.Lock()
		live := !e.removed
		e.mu.Unlock()
		if live {
			r.drop(e)
			r.logTag(log.TagDropped, e.key, 0, 0)
			n++
		}
		e.op.Unlock()
	}

	r.mu.Lock()
	set := r.sets[endpoint]
	delete(r.sets, endpoint)
	r.mu.Unlock()
	if set != nil {
		set.Reset()
	}
	return n
}

// remove releases e from its group and deletes it. Caller holds e.op.
func (r *Registry) remove(ctx context.Context, e *entry) bool {
	return r.removeIf(ctx, e, nil)
}

// removeIf removes e when cond, evaluated under e.mu, holds. The entry is
// marked removed in the same critical section, so a caller arriving during
// the backend release misses the cache and waits on e.op. Caller holds e.op.
func (r *Registry) removeIf(ctx context.Context, e *entry, cond func(*entry) bool) bool {
	e.mu.Lock()
	if e.removed || (cond != nil && !cond(e)) {
		e.mu.Unlock()
		return false
	}
	e.removed = true
	groupID := e.groupID
	e.mu.Unlock()

	if groupID != 0 {
		if err := r.set(e.key.Endpoint).Release(ctx, groupID, e.key.ItemID); err != nil {
			r.logger.Debug("release failed", "tag", e.key, "error", err)
		}
	}
	r.drop(e)
	return true
}

func (r *Registry) entries() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.tags))
	for _, e := range r.tags {
		out = append(out, e)
	}
	return out
}

func (r *Registry) logTag(action log.TagAction, key Key, interval time.Duration, groupID uint64) {
	if r.cfg.ProtocolLogger == nil {
		return
	}
	r.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: r.timeNow(),
		Endpoint:  key.Endpoint,
		Layer:     log.LayerEngine,
		Category:  log.CategoryTag,
		Tag: &log.TagEvent{
			Action:   action,
			ItemID:   key.ItemID,
			Interval: interval,
			GroupID:  groupID,
		},
	})
}
