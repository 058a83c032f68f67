package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event on the producer surface. Serialization
// onto any external broker is not this package's concern.
type Type string

const (
	IngotMoved        Type = "ingot.moved"
	IngotPickedUp     Type = "ingot.picked_up"
	IngotModified     Type = "ingot.modified"
	ShipmentCompleted Type = "shipment.completed"
	CraneFeedbackAck  Type = "crane.feedback_ack"
	OrderStateChanged Type = "order.state_changed"
	SchedulerChanged  Type = "scheduler.state_changed"
)

// Event is one domain notification.
type Event struct {
	Type      Type           `json:"type"`
	OrderID   uuid.UUID      `json:"order_id,omitempty"`
	IngotNo   string         `json:"ingot_no,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler consumes one event. Handlers must not block: they run on the
// publisher's goroutine.
type Handler func(e Event)

// Bus is a simple in-process publish/subscribe fan-out.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish fans an event out to all matching handlers.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Type] {
		h(e)
	}
	for _, h := range b.all {
		h(e)
	}
}
