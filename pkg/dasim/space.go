package dasim

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// DA quality codes used by the simulator.
const (
	QualityGood      uint16 = 0xC0
	QualityBad       uint16 = 0x00
	QualityUncertain uint16 = 0x40
)

// Item is one point of the address space.
type Item struct {
	Value       any
	Quality     uint16
	Timestamp   time.Time
	DataType    string
	Unit        string
	Description string

	// NoRead makes reads and subscriptions fail with ACCESS_DENIED.
	NoRead   bool
	Writable bool
}

// AddressSpace holds the simulated items. Changes are reported to the
// registered watcher.
type AddressSpace struct {
	mu    sync.RWMutex
	items map[string]*Item

	onChange func(itemID string)
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{items: make(map[string]*Item)}
}

// Set stores value with good quality stamped now, creating the item when
// needed.
func (a *AddressSpace) Set(itemID string, value any) {
	a.mu.Lock()
	it, ok := a.items[itemID]
	if !ok {
		it = &Item{DataType: dataType(value)}
		a.items[itemID] = it
	}
	it.Value = value
	it.Quality = QualityGood
	it.Timestamp = time.Now()
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(itemID)
	}
}

// Put stores a complete item.
func (a *AddressSpace) Put(itemID string, it Item) {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now()
	}
	if it.DataType == "" {
		it.DataType = dataType(it.Value)
	}
	a.mu.Lock()
	cp := it
	a.items[itemID] = &cp
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(itemID)
	}
}

// SetQuality changes the quality of an existing item.
func (a *AddressSpace) SetQuality(itemID string, q uint16) {
	a.mu.Lock()
	it, ok := a.items[itemID]
	if ok {
		it.Quality = q
		it.Timestamp = time.Now()
	}
	fn := a.onChange
	a.mu.Unlock()

	if ok && fn != nil {
		fn(itemID)
	}
}

// Delete removes an item.
func (a *AddressSpace) Delete(itemID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, itemID)
}

// Get returns a copy of an item.
func (a *AddressSpace) Get(itemID string) (Item, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	it, ok := a.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// IDs returns all item ids in sorted order.
func (a *AddressSpace) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.items))
	for id := range a.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Browse lists the children of path. ok is false when path names no
// branch.
func (a *AddressSpace) Browse(path string) (entries []wire.BrowseEntry, ok bool) {
	prefix := path
	if prefix != "" {
		prefix += "."
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[string]bool)
	for id, it := range a.items {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		name, _, branch := strings.Cut(strings.TrimPrefix(id, prefix), ".")
		if seen[name] {
			continue
		}
		seen[name] = true
		e := wire.BrowseEntry{Name: name, ItemID: prefix + name, IsBranch: branch}
		if !branch {
			e.DataType = it.DataType
			e.Unit = it.Unit
			e.Description = it.Description
			if !it.NoRead {
				e.AccessRights |= wire.AccessReadable
			}
			if it.Writable {
				e.AccessRights |= wire.AccessWritable
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, path == "" || len(entries) > 0
}

func (a *AddressSpace) watch(fn func(itemID string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func dataType(v any) string {
	switch v.(type) {
	case bool:
		return "VT_BOOL"
	case string:
		return "VT_BSTR"
	case float32:
		return "VT_R4"
	case float64:
		return "VT_R8"
	case int8, int16, int32:
		return "VT_I4"
	case int, int64:
		return "VT_I8"
	case uint8, uint16, uint32:
		return "VT_UI4"
	case uint, uint64:
		return "VT_UI8"
	default:
		return "VT_VARIANT"
	}
}
