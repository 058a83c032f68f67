package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an event is not allowed in the
// order's current status. The order is left unchanged.
var ErrInvalidTransition = errors.New("invalid order transition")

// StateMachine drives one order through its lifecycle. It is not safe
// for concurrent use; the scheduler's dispatch goroutine is the only
// writer by design.
type StateMachine struct {
	order *Order

	// resumeTo remembers where a PAUSED order returns on interlock
	// clear: IN_PROGRESS when paused on the empty way to the source,
	// PICKED_UP when the ingot was already in the gripper.
	resumeTo Status
}

// NewStateMachine wraps an order. The order's current status is taken
// as-is so recovered orders can continue after a restart.
func NewStateMachine(o *Order) *StateMachine {
	return &StateMachine{order: o, resumeTo: StatusInProgress}
}

// Order returns the wrapped order.
func (m *StateMachine) Order() *Order {
	return m.order
}

// Can reports whether the event would be accepted in the current state.
func (m *StateMachine) Can(ev Event) bool {
	_, ok := transitions[m.order.Status][ev]
	return ok
}

// Fire applies an event to the order and returns the new status.
// Invalid events fail with ErrInvalidTransition and leave the order
// untouched.
func (m *StateMachine) Fire(ev Event) (Status, error) {
	next, ok := transitions[m.order.Status][ev]
	if !ok {
		return m.order.Status, fmt.Errorf("%w: %s in %s (order %s)",
			ErrInvalidTransition, ev, m.order.Status, m.order.TransportNo)
	}

	switch ev {
	case EventInterlockOpened:
		m.resumeTo = m.order.Status
	case EventInterlockCleared:
		next = m.resumeTo
	case EventPickConfirmed:
		m.order.IngotInGripper = true
	case EventDropConfirmed:
		m.order.IngotInGripper = false
	}

	m.order.Status = next

	now := time.Now()
	switch next {
	case StatusInProgress:
		if m.order.StartedAt == nil {
			m.order.StartedAt = &now
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		m.order.CompletedAt = &now
	}

	return next, nil
}

// Fail forces the order into FAILED with a reason. Used for feedback
// timeouts and the emergency-stop path; the gripper flag keeps telling
// where the ingot physically is.
func (m *StateMachine) Fail(reason string) {
	m.order.Status = StatusFailed
	m.order.ErrorMessage = reason
	now := time.Now()
	m.order.CompletedAt = &now
}
