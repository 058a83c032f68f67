package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Order lifecycle messages
	MessageTypeOrderState MessageType = "order_state"

	// Material movement messages
	MessageTypeIngotPickedUp MessageType = "ingot_picked_up"
	MessageTypeIngotMoved    MessageType = "ingot_moved"
	MessageTypeShipment      MessageType = "shipment_completed"

	// Crane messages
	MessageTypeCraneFeedback MessageType = "crane_feedback"

	// Scheduler messages
	MessageTypeSchedulerState MessageType = "scheduler_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
