package transport

import (
	"time"

	"github.com/google/uuid"
)

// Priority separates the two queue lanes feeding the single crane.
// Saw-side pickups outrank relocations.
type Priority int

const (
	PrioritySaw        Priority = 0
	PriorityRelocation Priority = 1
)

// Order is one crane job: move one ingot from a source slot to a
// destination slot.
type Order struct {
	ID          uuid.UUID `json:"id"`
	TransportNo string    `json:"transport_no"`

	IngotID uuid.UUID `json:"ingot_id"`
	IngotNo string    `json:"ingot_no"`

	FromYardID       uuid.UUID `json:"from_yard_id"`
	FromYardNo       string    `json:"from_yard_no"`
	FromPilePosition int       `json:"from_pile_position"`

	ToYardID       uuid.UUID `json:"to_yard_id"`
	ToYardNo       string    `json:"to_yard_no"`
	ToPilePosition int       `json:"to_pile_position"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	// Gesetzt, wenn der Auftrag mit Barren im Greifer fehlgeschlagen ist
	IngotInGripper bool   `json:"ingot_in_gripper,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewOrder creates a PENDING order for one crane move.
func NewOrder(transportNo string, ingotID uuid.UUID, ingotNo string, prio Priority) *Order {
	return &Order{
		ID:          uuid.New(),
		TransportNo: transportNo,
		IngotID:     ingotID,
		IngotNo:     ingotNo,
		Status:      StatusPending,
		Priority:    prio,
		CreatedAt:   time.Now(),
	}
}
