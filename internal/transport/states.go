package transport

import "fmt"

// Status is the lifecycle state of a transport order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPickedUp   Status = "PICKED_UP"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusPaused     Status = "PAUSED"
)

// Event drives a status transition.
type Event string

const (
	EventDispatch         Event = "DISPATCH"
	EventPickConfirmed    Event = "PICK_CONFIRMED"
	EventDropConfirmed    Event = "DROP_CONFIRMED"
	EventInterlockOpened  Event = "INTERLOCK_OPENED"
	EventInterlockCleared Event = "INTERLOCK_CLEARED"
	EventFault            Event = "FAULT"
	EventCancel           Event = "CANCEL"
)

// wireCodes is the closed bidirectional mapping between statuses and
// the single-character codes used on the PLC/SAP wire.
var wireCodes = map[Status]string{
	StatusPending:    "P",
	StatusInProgress: "I",
	StatusPickedUp:   "U",
	StatusCompleted:  "C",
	StatusFailed:     "F",
	StatusCancelled:  "X",
	StatusPaused:     "H",
}

var statusByWireCode = func() map[string]Status {
	m := make(map[string]Status, len(wireCodes))
	for s, c := range wireCodes {
		m[c] = s
	}
	return m
}()

// WireCode returns the single-character wire representation.
func (s Status) WireCode() string {
	return wireCodes[s]
}

// ParseWireCode resolves a single-character wire code into a status.
func ParseWireCode(code string) (Status, error) {
	s, ok := statusByWireCode[code]
	if !ok {
		return "", fmt.Errorf("unknown status wire code: %q", code)
	}
	return s, nil
}

// IsActive reports whether the order still needs the scheduler.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPickedUp, StatusPaused:
		return true
	}
	return false
}

// IsFinal reports whether the order reached a terminal state.
func (s Status) IsFinal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InFlight reports whether the crane is physically working this order.
// At most one order system-wide may be in flight.
func (s Status) InFlight() bool {
	return s == StatusInProgress || s == StatusPickedUp
}

// transitions is the closed transition table of the order lifecycle.
// PAUSED is handled separately because it resumes to the state it was
// entered from (with or without the ingot in the gripper).
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventDispatch: StatusInProgress,
		EventCancel:   StatusCancelled,
	},
	StatusInProgress: {
		EventPickConfirmed:   StatusPickedUp,
		EventInterlockOpened: StatusPaused,
		EventFault:           StatusFailed,
	},
	StatusPickedUp: {
		EventDropConfirmed:   StatusCompleted,
		EventInterlockOpened: StatusPaused,
		EventFault:           StatusFailed,
	},
	StatusPaused: {
		// Zielzustand wird von der StateMachine aus resumeTo bestimmt
		EventInterlockCleared: StatusInProgress,
		EventFault:            StatusFailed,
	},
}
