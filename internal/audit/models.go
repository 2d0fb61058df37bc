package audit

import "time"

// Event is an immutable, append-only record of something that happened to a call.
//
// Invariants:
// - Events are never updated or deleted; retention is handled by the repository.
// - call_id is required.
// - Recording events is best-effort; call handling never blocks on a failed append.
type Event struct {
	ID     string    `json:"id"`
	CallID string    `json:"call_id"`
	Type   EventType `json:"type"`

	// Message is a short human-readable description for operators.
	Message string `json:"message,omitempty"`

	// Metadata carries event-specific details such as the provider status or recording url.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeRegistered     EventType = "registered"
	EventTypeRejected       EventType = "rejected"
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSessionFailed  EventType = "session_failed"
	EventTypeStatusChanged  EventType = "status_changed"
	EventTypeRecording      EventType = "recording"
	EventTypeEnded          EventType = "ended"
)
