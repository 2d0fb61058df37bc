package telephony

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Terminal call statuses. After one of these the provider sends nothing further for the call.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRejected   = "rejected"
	StatusBusy       = "busy"
	StatusTimeout    = "timeout"
	StatusCancelled  = "cancelled"
	StatusUnanswered = "unanswered"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusRejected, StatusBusy,
		StatusTimeout, StatusCancelled, StatusUnanswered:
		return true
	}
	return false
}

// AnswerWebhook is the answer_url callback. Vonage sends it as a GET with query parameters
// by default, or as a POST with a JSON body when answer_method is POST.
type AnswerWebhook struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	From             string `json:"from"`
	To               string `json:"to"`
	// CallID is the internal id this service put on the answer_url of an outbound call.
	CallID string `json:"call_id"`
}

type EventWebhook struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
	From             string `json:"from"`
	To               string `json:"to"`
	Timestamp        string `json:"timestamp"`
	Duration         string `json:"duration"`
	CallID           string `json:"call_id"`
}

type RecordingWebhook struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	RecordingURL     string `json:"recording_url"`
	RecordingUUID    string `json:"recording_uuid"`
	// Duration is in seconds; Vonage sends it as a number or a numeric string.
	Duration json.Number `json:"duration"`
	CallID   string      `json:"call_id"`
}

// TranscriptLine is how a finished recording appears in the call transcript.
func (r RecordingWebhook) TranscriptLine() string {
	d := r.Duration.String()
	if d == "" {
		d = "0"
	}
	return fmt.Sprintf("Recording: %s (%ss)", r.RecordingURL, d)
}

func ParseVonageAnswer(r *http.Request) (AnswerWebhook, error) {
	var a AnswerWebhook
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := decodeJSON(r, &a); err != nil {
			return AnswerWebhook{}, err
		}
	}
	q := r.URL.Query()
	fill(&a.UUID, q.Get("uuid"))
	fill(&a.ConversationUUID, q.Get("conversation_uuid"))
	fill(&a.From, q.Get("from"))
	fill(&a.To, q.Get("to"))
	fill(&a.CallID, q.Get("call_id"))
	a.From = strings.TrimSpace(a.From)
	a.To = strings.TrimSpace(a.To)
	if a.UUID == "" && a.CallID == "" {
		return AnswerWebhook{}, fmt.Errorf("telephony: answer webhook without uuid")
	}
	return a, nil
}

func ParseVonageEvent(r *http.Request) (EventWebhook, error) {
	var e EventWebhook
	if r.Method == http.MethodPost {
		if err := decodeJSON(r, &e); err != nil {
			return EventWebhook{}, err
		}
	}
	q := r.URL.Query()
	fill(&e.UUID, q.Get("uuid"))
	fill(&e.Status, q.Get("status"))
	fill(&e.CallID, q.Get("call_id"))
	return e, nil
}

func ParseVonageRecording(r *http.Request) (RecordingWebhook, error) {
	var rec RecordingWebhook
	if err := decodeJSON(r, &rec); err != nil {
		return RecordingWebhook{}, err
	}
	fill(&rec.CallID, r.URL.Query().Get("call_id"))
	if rec.Duration != "" {
		if _, err := strconv.ParseFloat(rec.Duration.String(), 64); err != nil {
			rec.Duration = ""
		}
	}
	return rec, nil
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: read webhook body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("telephony: decode webhook body: %w", err)
	}
	return nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
