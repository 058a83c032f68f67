package scheduler

import (
	"sync"

	"github.com/aluware/blocklager/internal/metrics"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/google/uuid"
)

var laneNames = map[transport.Priority]string{
	transport.PrioritySaw:        "saw",
	transport.PriorityRelocation: "relocation",
}

// orderQueue holds the PENDING backlog in two priority lanes feeding
// the one crane: saw-side pickups outrank relocations, FIFO within a
// lane. Insertion is the only concurrent path and is guarded here; the
// dispatch loop is the only consumer.
type orderQueue struct {
	mu    sync.Mutex
	lanes map[transport.Priority][]*transport.Order

	// wake signals the dispatch loop that a new order arrived
	wake chan struct{}
}

func newOrderQueue() *orderQueue {
	return &orderQueue{
		lanes: make(map[transport.Priority][]*transport.Order),
		wake:  make(chan struct{}, 1),
	}
}

// enqueue appends an order to its lane and wakes the dispatch loop.
func (q *orderQueue) enqueue(o *transport.Order) {
	q.mu.Lock()
	q.lanes[o.Priority] = append(q.lanes[o.Priority], o)
	metrics.OrdersPending.WithLabelValues(laneNames[o.Priority]).Inc()
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
		// Loop ist bereits geweckt
	}
}

// popNext removes the next eligible order: saw lane first, FIFO within
// the lane. Returns nil when the backlog is empty.
func (q *orderQueue) popNext() *transport.Order {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, prio := range []transport.Priority{transport.PrioritySaw, transport.PriorityRelocation} {
		lane := q.lanes[prio]
		if len(lane) == 0 {
			continue
		}
		o := lane[0]
		q.lanes[prio] = lane[1:]
		metrics.OrdersPending.WithLabelValues(laneNames[prio]).Dec()
		return o
	}
	return nil
}

// remove takes a specific pending order out of its lane.
func (q *orderQueue) remove(id uuid.UUID) (*transport.Order, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for prio, lane := range q.lanes {
		for i, o := range lane {
			if o.ID == id {
				q.lanes[prio] = append(lane[:i:i], lane[i+1:]...)
				metrics.OrdersPending.WithLabelValues(laneNames[prio]).Dec()
				return o, true
			}
		}
	}
	return nil, false
}

// clearLane empties one lane and returns the removed orders.
func (q *orderQueue) clearLane(prio transport.Priority) []*transport.Order {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane := q.lanes[prio]
	q.lanes[prio] = nil
	metrics.OrdersPending.WithLabelValues(laneNames[prio]).Sub(float64(len(lane)))
	return lane
}

// pendingCount returns the total backlog size.
func (q *orderQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// snapshot returns copies of all pending orders in dispatch sequence.
func (q *orderQueue) snapshot() []transport.Order {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]transport.Order, 0, len(q.lanes[transport.PrioritySaw])+len(q.lanes[transport.PriorityRelocation]))
	for _, prio := range []transport.Priority{transport.PrioritySaw, transport.PriorityRelocation} {
		for _, o := range q.lanes[prio] {
			out = append(out, *o)
		}
	}
	return out
}
