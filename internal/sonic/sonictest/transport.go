// Package sonictest provides an in-memory sonic.Transport for tests.
package sonictest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"esther-voice/internal/sonic"
)

var ErrStreamClosed = errors.New("sonictest: stream closed")

// Transport hands out Streams and remembers them in open order.
type Transport struct {
	mu      sync.Mutex
	OpenErr error
	streams []*Stream
}

func NewTransport() *Transport { return &Transport{} }

func (t *Transport) Open(ctx context.Context) (sonic.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	s := NewStream()
	t.streams = append(t.streams, s)
	return s, nil
}

// Last returns the most recently opened stream, or nil.
func (t *Transport) Last() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

func (t *Transport) Opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// Event is one payload the session wrote.
type Event struct {
	Kind   sonic.Kind
	Fields json.RawMessage
}

// Stream records outbound events and replays injected inbound ones.
type Stream struct {
	mu      sync.Mutex
	sent    []Event
	sendErr error

	inbound   chan []byte
	failures  chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func NewStream() *Stream {
	return &Stream{
		inbound:  make(chan []byte, 64),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (s *Stream) Send(ctx context.Context, payload []byte) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	kind, raw, err := sonic.Decode(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, Event{Kind: kind, Fields: raw})
	return nil
}

func (s *Stream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	case err := <-s.failures:
		return nil, err
	case b := <-s.inbound:
		return b, nil
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *Stream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FailSends makes every later Send return err.
func (s *Stream) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// FailRecv makes the reader's next Recv return err.
func (s *Stream) FailRecv(err error) {
	s.failures <- err
}

// Emit queues an inbound event for the session reader.
func (s *Stream) Emit(kind sonic.Kind, fields any) {
	b, err := sonic.Encode(kind, fields)
	if err != nil {
		panic(err)
	}
	s.inbound <- b
}

// EmitRaw queues an arbitrary inbound payload.
func (s *Stream) EmitRaw(b []byte) { s.inbound <- b }

// EmitText sends contentStart(role) + textOutput + contentEnd.
func (s *Stream) EmitText(role sonic.Role, text string) {
	s.Emit(sonic.KindContentStart, sonic.ContentStart{Type: sonic.ContentText, Role: role})
	s.Emit(sonic.KindTextOutput, sonic.TextOutput{Content: text})
	s.Emit(sonic.KindContentEnd, sonic.ContentEnd{})
}

// EmitAudio sends one audioOutput chunk.
func (s *Stream) EmitAudio(pcm []byte) {
	s.Emit(sonic.KindAudioOutput, sonic.AudioOutput{Content: base64.StdEncoding.EncodeToString(pcm)})
}

func (s *Stream) Sent() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Stream) Kinds() []sonic.Kind {
	evs := s.Sent()
	out := make([]sonic.Kind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were sent.
func (s *Stream) Count(kind sonic.Kind) int {
	n := 0
	for _, k := range s.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// AudioSent decodes every audioInput payload in send order.
func (s *Stream) AudioSent() [][]byte {
	var out [][]byte
	for _, e := range s.Sent() {
		if e.Kind != sonic.KindAudioInput {
			continue
		}
		var in sonic.ContentInput
		if err := json.Unmarshal(e.Fields, &in); err != nil {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}
