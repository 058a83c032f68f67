package crane

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackKind classifies a crane feedback telegram.
type FeedbackKind string

const (
	FeedbackPickConfirmed    FeedbackKind = "pick_confirmed"
	FeedbackDropConfirmed    FeedbackKind = "drop_confirmed"
	FeedbackFault            FeedbackKind = "fault"
	FeedbackInterlockOpened  FeedbackKind = "interlock_opened"
	FeedbackInterlockCleared FeedbackKind = "interlock_cleared"
)

// Feedback is one normalized feedback event from the crane. OrderID is
// zero for interlock telegrams, which are not bound to an order.
type Feedback struct {
	Kind      FeedbackKind `json:"kind"`
	OrderID   uuid.UUID    `json:"order_id,omitempty"`
	FaultCode string       `json:"fault_code,omitempty"`
	At        time.Time    `json:"at"`
}
