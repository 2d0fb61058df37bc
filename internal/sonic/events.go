package sonic

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names one event in the Nova Sonic bidirectional stream vocabulary.
type Kind string

const (
	KindSessionStart Kind = "sessionStart"
	KindPromptStart  Kind = "promptStart"
	KindContentStart Kind = "contentStart"
	KindTextInput    Kind = "textInput"
	KindAudioInput   Kind = "audioInput"
	KindContentEnd   Kind = "contentEnd"
	KindPromptEnd    Kind = "promptEnd"
	KindSessionEnd   Kind = "sessionEnd"

	KindTextOutput  Kind = "textOutput"
	KindAudioOutput Kind = "audioOutput"
	KindError       Kind = "error"

	// Sent by the model around each completion; decoded and ignored.
	KindCompletionStart Kind = "completionStart"
	KindCompletionEnd   Kind = "completionEnd"
	KindUsageEvent      Kind = "usageEvent"
	KindToolUse         Kind = "toolUse"
)

var knownKinds = map[Kind]struct{}{
	KindSessionStart:    {},
	KindPromptStart:     {},
	KindContentStart:    {},
	KindTextInput:       {},
	KindAudioInput:      {},
	KindContentEnd:      {},
	KindPromptEnd:       {},
	KindSessionEnd:      {},
	KindTextOutput:      {},
	KindAudioOutput:     {},
	KindError:           {},
	KindCompletionStart: {},
	KindCompletionEnd:   {},
	KindUsageEvent:      {},
	KindToolUse:         {},
}

// ErrMalformedEvent is returned by Decode when a payload is not a single recognized event.
var ErrMalformedEvent = errors.New("sonic: malformed event")

// Role is the speaker of a content block.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ContentType selects the input configuration carried by contentStart.
type ContentType string

const (
	ContentText  ContentType = "TEXT"
	ContentAudio ContentType = "AUDIO"
)

const (
	StageSpeculative = "SPECULATIVE"
	StageFinal       = "FINAL"
)

type envelope struct {
	Event map[Kind]json.RawMessage `json:"event"`
}

// Encode wraps fields in the {"event":{<kind>:{...}}} envelope.
// A nil fields value encodes as an empty object.
func Encode(kind Kind, fields any) ([]byte, error) {
	if kind == "" {
		return nil, errors.New("sonic: event kind is required")
	}
	var raw json.RawMessage
	if fields == nil {
		raw = json.RawMessage(`{}`)
	} else {
		b, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("sonic: encode %s: %w", kind, err)
		}
		raw = b
	}
	return json.Marshal(envelope{Event: map[Kind]json.RawMessage{kind: raw}})
}

// Decode unwraps an envelope and returns its single event kind and raw fields.
func Decode(b []byte) (Kind, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == nil {
		return "", nil, fmt.Errorf("%w: missing event key", ErrMalformedEvent)
	}

	var (
		kind  Kind
		found int
	)
	for k := range env.Event {
		if _, ok := knownKinds[k]; ok {
			kind = k
			found++
		}
	}
	if found != 1 {
		return "", nil, fmt.Errorf("%w: expected one recognized kind, got %d", ErrMalformedEvent, found)
	}
	return kind, env.Event[kind], nil
}

// DecodeInto decodes an envelope and unmarshals its fields into v.
func DecodeInto(b []byte, v any) (Kind, error) {
	kind, raw, err := Decode(b)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return kind, fmt.Errorf("%w: %s fields: %v", ErrMalformedEvent, kind, err)
	}
	return kind, nil
}

// Outbound payloads.

type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// DefaultInference matches the values every call used before per-call overrides existed.
func DefaultInference() InferenceConfig {
	return InferenceConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7}
}

type SessionStart struct {
	InferenceConfiguration InferenceConfig `json:"inferenceConfiguration"`
}

type MediaConfig struct {
	MediaType string `json:"mediaType"`
}

type AudioConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId,omitempty"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

type PromptStart struct {
	PromptName               string      `json:"promptName"`
	TextOutputConfiguration  MediaConfig `json:"textOutputConfiguration"`
	AudioOutputConfiguration AudioConfig `json:"audioOutputConfiguration"`
}

type ContentStart struct {
	PromptName              string       `json:"promptName"`
	ContentName             string       `json:"contentName"`
	Type                    ContentType  `json:"type"`
	Interactive             bool         `json:"interactive"`
	Role                    Role         `json:"role"`
	TextInputConfiguration  *MediaConfig `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration *AudioConfig `json:"audioInputConfiguration,omitempty"`

	// Present on inbound contentStart only; a JSON document carrying generationStage.
	AdditionalModelFields string `json:"additionalModelFields,omitempty"`
}

type ContentInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type ContentEnd struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

type PromptEnd struct {
	PromptName string `json:"promptName"`
}

type SessionEnd struct{}

// Inbound payloads.

type TextOutput struct {
	Content string `json:"content"`
	Role    Role   `json:"role,omitempty"`
}

type AudioOutput struct {
	Content string `json:"content"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type modelFields struct {
	GenerationStage string `json:"generationStage"`
}

// GenerationStage extracts generationStage from additionalModelFields, or "" when absent.
func (c ContentStart) GenerationStage() string {
	if c.AdditionalModelFields == "" {
		return ""
	}
	var mf modelFields
	if err := json.Unmarshal([]byte(c.AdditionalModelFields), &mf); err != nil {
		return ""
	}
	return mf.GenerationStage
}

// Audio formats fixed by the telephony leg and the model.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

func inputAudioConfig() AudioConfig {
	return AudioConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: InputSampleRate,
		SampleSizeBits:  16,
		ChannelCount:    1,
		Encoding:        "base64",
		AudioType:       "SPEECH",
	}
}

func outputAudioConfig(voiceID string) AudioConfig {
	return AudioConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: OutputSampleRate,
		SampleSizeBits:  16,
		ChannelCount:    1,
		VoiceID:         voiceID,
		Encoding:        "base64",
		AudioType:       "SPEECH",
	}
}

func SessionStartEvent(cfg InferenceConfig) SessionStart {
	return SessionStart{InferenceConfiguration: cfg}
}

func PromptStartEvent(promptName, voiceID string) PromptStart {
	return PromptStart{
		PromptName:               promptName,
		TextOutputConfiguration:  MediaConfig{MediaType: "text/plain"},
		AudioOutputConfiguration: outputAudioConfig(voiceID),
	}
}

func TextContentStart(promptName, contentName string, role Role) ContentStart {
	return ContentStart{
		PromptName:             promptName,
		ContentName:            contentName,
		Type:                   ContentText,
		Interactive:            true,
		Role:                   role,
		TextInputConfiguration: &MediaConfig{MediaType: "text/plain"},
	}
}

func AudioContentStart(promptName, contentName string) ContentStart {
	cfg := inputAudioConfig()
	return ContentStart{
		PromptName:              promptName,
		ContentName:             contentName,
		Type:                    ContentAudio,
		Interactive:             true,
		Role:                    RoleUser,
		AudioInputConfiguration: &cfg,
	}
}

func TextInputEvent(promptName, contentName, text string) ContentInput {
	return ContentInput{PromptName: promptName, ContentName: contentName, Content: text}
}

func AudioInputEvent(promptName, contentName, b64 string) ContentInput {
	return ContentInput{PromptName: promptName, ContentName: contentName, Content: b64}
}

func ContentEndEvent(promptName, contentName string) ContentEnd {
	return ContentEnd{PromptName: promptName, ContentName: contentName}
}

func PromptEndEvent(promptName string) PromptEnd {
	return PromptEnd{PromptName: promptName}
}
