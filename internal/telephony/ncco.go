package telephony

import (
	"fmt"
	"net/url"
	"strings"
)

// MediaContentType is the websocket audio format: 16 kHz signed 16-bit linear PCM.
const MediaContentType = "audio/l16;rate=16000"

// NCCO is a Vonage call control object: an ordered list of actions.
type NCCO []any

type Talk struct {
	Action   string `json:"action"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	BargeIn  bool   `json:"bargeIn"`
}

type Connect struct {
	Action   string     `json:"action"`
	Endpoint []Endpoint `json:"endpoint"`
}

type Endpoint struct {
	Type        string            `json:"type"`
	URI         string            `json:"uri"`
	ContentType string            `json:"content-type"`
	Headers     map[string]string `json:"headers"`
}

type Record struct {
	Action   string   `json:"action"`
	Format   string   `json:"format"`
	EventURL []string `json:"eventUrl"`
}

// AnswerOptions describes the call control returned when a call is answered.
type AnswerOptions struct {
	CallID string
	// Greeting is spoken before the media stream connects; callers may talk over it.
	Greeting string
	// MediaURL is the websocket the call's audio is connected to.
	MediaURL string
	// RecordingURL, when set, records the call and posts the result there.
	RecordingURL string
}

func AnswerNCCO(opts AnswerOptions) NCCO {
	var out NCCO
	if opts.RecordingURL != "" {
		out = append(out, Record{Action: "record", Format: "mp3", EventURL: []string{opts.RecordingURL}})
	}
	if opts.Greeting != "" {
		out = append(out, Talk{Action: "talk", Text: opts.Greeting, Language: "en-US", BargeIn: true})
	}
	return append(out, Connect{
		Action: "connect",
		Endpoint: []Endpoint{{
			Type:        "websocket",
			URI:         opts.MediaURL,
			ContentType: MediaContentType,
			Headers:     map[string]string{"call_id": opts.CallID},
		}},
	})
}

// ErrorNCCO speaks text and ends the call.
func ErrorNCCO(text string) NCCO {
	return NCCO{Talk{Action: "talk", Text: text}}
}

// MediaURL maps the public webhook base to the websocket URL for a call.
// https becomes wss, http becomes ws; a bare host is treated as https.
func MediaURL(base, callID string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(callID)
	return u.String(), nil
}

// WebhookURL joins base and path and, when callID is set, adds it as the call_id query parameter.
func WebhookURL(base, path, callID string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if callID != "" {
		q := u.Query()
		q.Set("call_id", callID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func parseBase(base string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("telephony: webhook base url is empty")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("telephony: webhook base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("telephony: webhook base url %q has no host", base)
	}
	return u, nil
}
