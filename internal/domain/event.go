package domain

import "encoding/json"

// Event types delivered over the live transport
const (
	EventConnected      = "connected"
	EventNewMessage     = "new_message"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventTaskChanged    = "task_changed"
	EventJoined         = "joined"
	EventLeft           = "left"
	EventAck            = "ack"
	EventError          = "error"
)

// Event is the envelope pushed to live connections
type Event struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// TaskChange is a cross-cutting task state notification. Payload is forwarded
// untouched; the task collaborator owns its shape.
type TaskChange struct {
	ActorID string          `json:"actor_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}
