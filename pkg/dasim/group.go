package dasim

import (
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

type member struct {
	itemID       string
	clientHandle uint32
}

// group is a server-side subscription group. Changes are coalesced and
// flushed once per rate.
type group struct {
	handle uint32
	rate   time.Duration
	send   func(*wire.Callback)
	space  *AddressSpace

	mu      sync.Mutex
	members map[uint32]member
	dirty   map[uint32]struct{}

	stopCh chan struct{}
	done   chan struct{}
}

func newGroup(handle uint32, rate time.Duration, space *AddressSpace, send func(*wire.Callback)) *group {
	g := &group{
		handle:  handle,
		rate:    rate,
		send:    send,
		space:   space,
		members: make(map[uint32]member),
		dirty:   make(map[uint32]struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *group) add(serverHandle uint32, m member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[serverHandle] = m
	// Prime the new member with its current value.
	g.dirty[serverHandle] = struct{}{}
}

func (g *group) remove(serverHandle uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[serverHandle]; !ok {
		return false
	}
	delete(g.members, serverHandle)
	delete(g.dirty, serverHandle)
	return true
}

func (g *group) recordChange(itemID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for h, m := range g.members {
		if m.itemID == itemID {
			g.dirty[h] = struct{}{}
		}
	}
}

func (g *group) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *group) stop() {
	close(g.stopCh)
	<-g.done
}

func (g *group) loop() {
	defer close(g.done)
	ticker := time.NewTicker(g.rate)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.flush()
		}
	}
}

func (g *group) flush() {
	g.mu.Lock()
	if len(g.dirty) == 0 {
		g.mu.Unlock()
		return
	}
	pending := make([]member, 0, len(g.dirty))
	for h := range g.dirty {
		if m, ok := g.members[h]; ok {
			pending = append(pending, m)
		}
	}
	g.dirty = make(map[uint32]struct{})
	g.mu.Unlock()

	cb := &wire.Callback{GroupHandle: g.handle}
	for _, m := range pending {
		it, ok := g.space.Get(m.itemID)
		if !ok {
			cb.Items = append(cb.Items, wire.ItemValue{Handle: m.clientHandle, Quality: QualityBad, Timestamp: time.Now()})
			continue
		}
		cb.Items = append(cb.Items, wire.ItemValue{
			Handle:    m.clientHandle,
			Value:     it.Value,
			Quality:   it.Quality,
			Timestamp: it.Timestamp,
		})
	}
	if len(cb.Items) > 0 {
		g.send(cb)
	}
}
