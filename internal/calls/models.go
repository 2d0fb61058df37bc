package calls

import (
	"context"
	"sync"
	"time"

	"esther-voice/internal/sonic"
)

// Conversation is the model session owned by a call once its media websocket attaches.
type Conversation interface {
	Transcript() []string
	End(ctx context.Context) error
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallStatus follows the provider status vocabulary.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusActive     CallStatus = "active"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusRejected   CallStatus = "rejected"
	CallStatusBusy       CallStatus = "busy"
	CallStatusTimeout    CallStatus = "timeout"
	CallStatusCancelled  CallStatus = "cancelled"
	CallStatusUnanswered CallStatus = "unanswered"
)

// Terminal reports whether the provider will send nothing further for this call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusRejected, CallStatusBusy,
		CallStatusTimeout, CallStatusCancelled, CallStatusUnanswered:
		return true
	}
	return false
}

// Metadata is what is known about a call when it is registered.
type Metadata struct {
	CallID         string
	ProviderCallID string
	ConversationID string
	From           string
	To             string
	// PhoneNumber is the remote party: the dialed number for outbound calls, the caller for inbound.
	PhoneNumber string
	Direction   Direction
	Prompt      string
	Inference   sonic.InferenceConfig
}

// Call is one registry entry.
//
// Lifecycle: registered on create-call or answer, owns a Conversation once the websocket
// attaches, removed on a terminal status or websocket teardown.
type Call struct {
	Metadata
	StartedAt time.Time

	mu       sync.Mutex
	status   CallStatus
	conv     Conversation
	attached bool
	notes    []string
}

// Status is the snapshot returned by the management surface.
type Status struct {
	CallID      string     `json:"callId"`
	PhoneNumber string     `json:"phoneNumber"`
	Direction   Direction  `json:"direction"`
	StartTime   time.Time  `json:"startTime"`
	Duration    float64    `json:"duration"`
	Transcript  string     `json:"transcript"`
	Status      string     `json:"status"`
	CallStatus  CallStatus `json:"callStatus"`
}
