package scheduler

import (
	"sync"

	"github.com/aluware/blocklager/internal/yard"
)

// SawQueue tracks the ingots staged at the saw-side transfer slot and
// waiting for their storage move. It is the bookkeeping behind the saw
// priority lane: one staged ingot corresponds to one pending saw-lane
// order.
type SawQueue struct {
	mu    sync.Mutex
	items []*yard.Ingot
}

func NewSawQueue() *SawQueue {
	return &SawQueue{}
}

// Enqueue stages a freshly sawn ingot.
func (sq *SawQueue) Enqueue(ing *yard.Ingot) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	sq.items = append(sq.items, ing)
}

// Remove takes one staged ingot out of the queue, typically after its
// storage order finished or was cancelled.
func (sq *SawQueue) Remove(ingotNo string) bool {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	for i, ing := range sq.items {
		if ing.IngotNo == ingotNo {
			sq.items = append(sq.items[:i:i], sq.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of staged ingots.
func (sq *SawQueue) Len() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return len(sq.items)
}

// Clear empties the staging queue and returns the removed ingots in
// FIFO order.
func (sq *SawQueue) Clear() []*yard.Ingot {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	items := sq.items
	sq.items = nil
	return items
}

// Snapshot returns copies of the staged ingots in FIFO order.
func (sq *SawQueue) Snapshot() []yard.Ingot {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	out := make([]yard.Ingot, 0, len(sq.items))
	for _, ing := range sq.items {
		out = append(out, *ing)
	}
	return out
}
