package dlep

import (
	"fmt"
	"sync"
)

// MemoryL2Table is a minimal in-process implementation of both
// L2Source and L2Sink, suitable for tests and for a daemon deployment
// that has no NHDP/OLSRv2 neighborhood subsystem wired in yet. The
// layer-2 neighbor database's storage policy is an external concern;
// this is one concrete policy among many a host could choose.
//
// On the radio side it is driven externally via Add/Change/Delete; on
// the router side, sessions call its L2Sink methods directly.
type MemoryL2Table struct {
	mu sync.Mutex

	neighbors map[MACAddr]L2Neighbor
	origin    map[MACAddr]string

	added   []func(L2Neighbor)
	changed []func(L2Neighbor)
	removed []func(L2Neighbor)
}

// NewMemoryL2Table constructs an empty table.
func NewMemoryL2Table() *MemoryL2Table {
	return &MemoryL2Table{
		neighbors: make(map[MACAddr]L2Neighbor),
		origin:    make(map[MACAddr]string),
	}
}

// Subscribe implements L2Source.
func (t *MemoryL2Table) Subscribe(added, changed, removed func(L2Neighbor)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added = append(t.added, added)
	t.changed = append(t.changed, changed)
	t.removed = append(t.removed, removed)
	idx := len(t.added) - 1
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.added[idx] = nil
		t.changed[idx] = nil
		t.removed[idx] = nil
	}
}

// Snapshot implements L2Source.
func (t *MemoryL2Table) Snapshot() []L2Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]L2Neighbor, 0, len(t.neighbors))
	for _, n := range t.neighbors {
		out = append(out, n)
	}
	return out
}

// Add is the external-layer driver API: a new neighbor appeared.
func (t *MemoryL2Table) Add(n L2Neighbor) {
	t.mu.Lock()
	t.neighbors[n.MAC] = n
	cbs := append([]func(L2Neighbor){}, t.added...)
	t.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(n)
		}
	}
}

// Change notifies subscribers that an existing neighbor's metrics
// changed.
func (t *MemoryL2Table) Change(n L2Neighbor) {
	t.mu.Lock()
	t.neighbors[n.MAC] = n
	cbs := append([]func(L2Neighbor){}, t.changed...)
	t.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(n)
		}
	}
}

// Delete notifies subscribers that a neighbor disappeared (the
// external-layer driver API; not to be confused with L2Sink.Remove,
// which is the router-session-facing method below).
func (t *MemoryL2Table) Delete(mac MACAddr) {
	t.mu.Lock()
	n, ok := t.neighbors[mac]
	delete(t.neighbors, mac)
	cbs := append([]func(L2Neighbor){}, t.removed...)
	t.mu.Unlock()
	if !ok {
		return
	}
	for _, cb := range cbs {
		if cb != nil {
			cb(n)
		}
	}
}

// Upsert implements L2Sink (router side). An entry owned by another
// origin is left untouched and reported as an error.
func (t *MemoryL2Table) Upsert(origin string, n L2Neighbor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.origin[n.MAC]; ok && o != origin {
		return fmt.Errorf("dlep: l2 entry %v is owned by another origin", n.MAC)
	}
	t.neighbors[n.MAC] = n
	t.origin[n.MAC] = origin
	return nil
}

// Update implements L2Sink.
func (t *MemoryL2Table) Update(origin string, n L2Neighbor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.origin[n.MAC]; ok && o != origin {
		return
	}
	t.neighbors[n.MAC] = n
}

// Remove implements L2Sink: remove mac only if origin owns it.
func (t *MemoryL2Table) Remove(origin string, mac MACAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.origin[mac]; !ok || o != origin {
		return
	}
	delete(t.neighbors, mac)
	delete(t.origin, mac)
}

// RemoveOrigin implements L2Sink.
func (t *MemoryL2Table) RemoveOrigin(origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for mac, o := range t.origin {
		if o == origin {
			delete(t.neighbors, mac)
			delete(t.origin, mac)
		}
	}
}

// Get returns the entry for mac, for test assertions and introspection.
func (t *MemoryL2Table) Get(mac MACAddr) (L2Neighbor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.neighbors[mac]
	return n, ok
}

// Len reports how many neighbors the table currently holds.
func (t *MemoryL2Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.neighbors)
}
