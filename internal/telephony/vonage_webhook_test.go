package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseVonageAnswer_Query(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/webhooks/answer?uuid=v-1&conversation_uuid=CON-1&from=15551234567&to=12135235735", nil)
	a, err := ParseVonageAnswer(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.UUID != "v-1" || a.ConversationUUID != "CON-1" || a.From != "15551234567" || a.To != "12135235735" {
		t.Fatalf("unexpected answer %+v", a)
	}
}

func TestParseVonageAnswer_JSONWithCallID(t *testing.T) {
	body := strings.NewReader(`{"uuid":"v-1","from":"1","to":"2"}`)
	r := httptest.NewRequest(http.MethodPost, "/outbound/webhooks/answer?call_id=c1", body)
	a, err := ParseVonageAnswer(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.UUID != "v-1" || a.CallID != "c1" {
		t.Fatalf("unexpected answer %+v", a)
	}
}

func TestParseVonageAnswer_RequiresIdentifier(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/webhooks/answer", nil)
	if _, err := ParseVonageAnswer(r); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseVonageEvent(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(`{"uuid":"v-1","status":"completed","duration":"42"}`))
	e, err := ParseVonageEvent(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.UUID != "v-1" || !IsTerminal(e.Status) {
		t.Fatalf("unexpected event %+v", e)
	}
	for _, st := range []string{"started", "ringing", "answered"} {
		if IsTerminal(st) {
			t.Fatalf("%s must not be terminal", st)
		}
	}
	for _, st := range []string{"busy", "unanswered", "rejected", "timeout", "cancelled"} {
		if !IsTerminal(st) {
			t.Fatalf("%s must be terminal", st)
		}
	}
}

func TestParseVonageRecording_TranscriptLine(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/recording", strings.NewReader(`{"uuid":"v-1","recording_url":"https://api/rec/1","duration":42}`))
	rec, err := ParseVonageRecording(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := rec.TranscriptLine(); got != "Recording: https://api/rec/1 (42s)" {
		t.Fatalf("unexpected line %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/webhooks/recording", strings.NewReader(`{"uuid":"v-1","recording_url":"u"}`))
	rec, _ = ParseVonageRecording(r)
	if got := rec.TranscriptLine(); got != "Recording: u (0s)" {
		t.Fatalf("unexpected line %q", got)
	}
}
