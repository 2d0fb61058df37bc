package sonic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateCreated State = iota
	StateStreamOpen
	StateAudioReady
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateStreamOpen:
		return "STREAM_OPEN"
	case StateAudioReady:
		return "AUDIO_READY"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config describes one conversation with the model.
type Config struct {
	SystemPrompt   string
	Inference      InferenceConfig
	VoiceID        string
	AudioQueueSize int
}

func (c Config) withDefaults() Config {
	out := c
	if out.Inference == (InferenceConfig{}) {
		out.Inference = DefaultInference()
	}
	if out.VoiceID == "" {
		out.VoiceID = "matthew"
	}
	if out.AudioQueueSize <= 0 {
		out.AudioQueueSize = 512
	}
	return out
}

// Session owns one logical conversation with the speech model.
//
// Outbound events are serialized under mu, so the audio content block can never be written
// before its contentStart and nothing is written after sessionEnd. A single reader goroutine
// demultiplexes inbound events into the transcript and the audio queue.
type Session struct {
	id        string
	cfg       Config
	transport Transport
	log       *slog.Logger

	promptName    string
	systemContent string
	audioContent  string

	mu         sync.Mutex
	state      State
	stream     Stream
	promptOpen bool
	audioOpen  bool

	broken atomic.Bool

	tmu        sync.Mutex
	transcript []string
	role       Role
	stage      string

	audio *AudioQueue

	cancelReader context.CancelFunc
	done         chan struct{}
	doneOnce     sync.Once

	errMu   sync.Mutex
	readErr error
}

// NewSession prepares a session; nothing is sent until Start.
func NewSession(id string, t Transport, cfg Config, log *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:            id,
		cfg:           cfg,
		transport:     t,
		log:           log.With("call_id", id),
		promptName:    uuid.NewString(),
		systemContent: uuid.NewString(),
		audioContent:  uuid.NewString(),
		audio:         NewAudioQueue(cfg.AudioQueueSize),
		done:          make(chan struct{}),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) PromptName() string { return s.promptName }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether audio is currently accepted.
func (s *Session) Active() bool {
	return s.State() == StateAudioReady && !s.broken.Load()
}

// Done is closed once the response reader has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that stopped the response reader, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// Start opens the model stream and sends the setup choreography:
// sessionStart, promptStart, the SYSTEM text block, and the USER audio contentStart.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return fmt.Errorf("%w: start in state %s", ErrSessionNotActive, s.state)
	}
	if s.transport == nil {
		s.failStartLocked()
		return fmt.Errorf("%w: no transport configured", ErrTransportUnavailable)
	}

	stream, err := s.transport.Open(ctx)
	if err != nil {
		s.failStartLocked()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	s.stream = stream

	if err := s.sendLocked(ctx, KindSessionStart, SessionStartEvent(s.cfg.Inference)); err != nil {
		_ = stream.Close()
		s.failStartLocked()
		return fmt.Errorf("%w: session start: %v", ErrTransportUnavailable, err)
	}
	s.state = StateStreamOpen

	readerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelReader = cancel
	go s.readLoop(readerCtx, stream)

	if err := s.openPromptLocked(ctx); err != nil {
		s.log.Error("prompt setup failed", "err", err)
		_ = s.endLocked(ctx)
		return err
	}

	s.state = StateAudioReady
	s.log.Info("model session ready", "prompt_name", s.promptName)
	return nil
}

func (s *Session) openPromptLocked(ctx context.Context) error {
	if err := s.sendLocked(ctx, KindPromptStart, PromptStartEvent(s.promptName, s.cfg.VoiceID)); err != nil {
		return fmt.Errorf("sonic: prompt start: %w", err)
	}
	s.promptOpen = true

	steps := []struct {
		kind   Kind
		fields any
	}{
		{KindContentStart, TextContentStart(s.promptName, s.systemContent, RoleSystem)},
		{KindTextInput, TextInputEvent(s.promptName, s.systemContent, s.cfg.SystemPrompt)},
		{KindContentEnd, ContentEndEvent(s.promptName, s.systemContent)},
	}
	for _, st := range steps {
		if err := s.sendLocked(ctx, st.kind, st.fields); err != nil {
			return fmt.Errorf("sonic: system prompt %s: %w", st.kind, err)
		}
	}

	if err := s.sendLocked(ctx, KindContentStart, AudioContentStart(s.promptName, s.audioContent)); err != nil {
		return fmt.Errorf("sonic: audio content start: %w", err)
	}
	s.audioOpen = true
	return nil
}

// SendAudio forwards one chunk of 16 kHz 16-bit mono PCM to the model.
func (s *Session) SendAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAudioReady || s.broken.Load() {
		return ErrSessionNotActive
	}
	enc := base64.StdEncoding.EncodeToString(pcm)
	return s.sendLocked(ctx, KindAudioInput, AudioInputEvent(s.promptName, s.audioContent, enc))
}

// SendText injects a USER text turn alongside the open audio block.
func (s *Session) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAudioReady || s.broken.Load() {
		return ErrSessionNotActive
	}
	name := uuid.NewString()
	if err := s.sendLocked(ctx, KindContentStart, TextContentStart(s.promptName, name, RoleUser)); err != nil {
		return err
	}
	if err := s.sendLocked(ctx, KindTextInput, TextInputEvent(s.promptName, name, text)); err != nil {
		return err
	}
	return s.sendLocked(ctx, KindContentEnd, ContentEndEvent(s.promptName, name))
}

// NextAudio blocks for the next chunk of 24 kHz model audio.
// It returns ErrQueueClosed once the session is over and the queue has drained.
func (s *Session) NextAudio(ctx context.Context) ([]byte, error) {
	return s.audio.Pop(ctx)
}

// PendingAudio is the number of model audio chunks not yet consumed.
func (s *Session) PendingAudio() int { return s.audio.Len() }

// Transcript returns the transcript lines in arrival order.
func (s *Session) Transcript() []string {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	out := make([]string, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// End closes the open content blocks, the prompt and the session, then closes the stream.
// It waits for the reader until ctx is done. Calling End again is a no-op.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}
	err := s.endLocked(ctx)
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn("model reader did not stop before deadline")
	}
	s.audio.Close()
	return err
}

func (s *Session) endLocked(ctx context.Context) error {
	var errs []error
	live := !s.broken.Load()

	if live && s.audioOpen {
		errs = append(errs, s.sendLocked(ctx, KindContentEnd, ContentEndEvent(s.promptName, s.audioContent)))
	}
	if live && s.promptOpen {
		errs = append(errs, s.sendLocked(ctx, KindPromptEnd, PromptEndEvent(s.promptName)))
	}
	if live && s.state >= StateStreamOpen {
		errs = append(errs, s.sendLocked(ctx, KindSessionEnd, SessionEnd{}))
	}
	s.audioOpen = false
	s.promptOpen = false
	s.state = StateEnded

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sonic: close stream: %w", err))
		}
	}
	if s.cancelReader != nil {
		s.cancelReader()
	} else {
		s.closeDone()
	}
	s.log.Info("model session ended", "transcript_lines", len(s.Transcript()))
	return errors.Join(errs...)
}

func (s *Session) failStartLocked() {
	s.state = StateEnded
	s.closeDone()
	s.audio.Close()
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) sendLocked(ctx context.Context, kind Kind, fields any) error {
	b, err := Encode(kind, fields)
	if err != nil {
		return err
	}
	if err := s.stream.Send(ctx, b); err != nil {
		return fmt.Errorf("sonic: send %s: %w", kind, err)
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context, stream Stream) {
	defer s.closeDone()
	defer s.audio.Close()

	for {
		b, err := stream.Recv(ctx)
		if err != nil {
			s.broken.Store(true)
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			s.errMu.Lock()
			s.readErr = err
			s.errMu.Unlock()
			s.log.Warn("model stream read failed", "err", err)
			return
		}
		s.dispatch(b)
	}
}

func (s *Session) dispatch(b []byte) {
	kind, raw, err := Decode(b)
	if err != nil {
		s.log.Debug("skipping model event", "err", err)
		return
	}

	switch kind {
	case KindContentStart:
		var cs ContentStart
		if err := json.Unmarshal(raw, &cs); err != nil {
			s.log.Debug("skipping model event", "kind", kind, "err", err)
			return
		}
		s.tmu.Lock()
		s.role = cs.Role
		s.stage = cs.GenerationStage()
		s.tmu.Unlock()

	case KindTextOutput:
		var to TextOutput
		if err := json.Unmarshal(raw, &to); err != nil {
			s.log.Debug("skipping model event", "kind", kind, "err", err)
			return
		}
		if isBargeIn(to.Content) {
			n := s.audio.Clear()
			s.log.Debug("caller barged in", "cleared_chunks", n)
			return
		}
		s.tmu.Lock()
		role, stage := s.role, s.stage
		s.tmu.Unlock()
		if role == "" {
			role = to.Role
		}
		// FINAL assistant text repeats the speculative text already recorded.
		if role == RoleAssistant && stage == StageFinal {
			return
		}
		s.appendTranscript(role, to.Content)

	case KindAudioOutput:
		var ao AudioOutput
		if err := json.Unmarshal(raw, &ao); err != nil {
			s.log.Debug("skipping model event", "kind", kind, "err", err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(ao.Content)
		if err != nil {
			s.log.Debug("skipping model audio", "err", err)
			return
		}
		if s.audio.Push(pcm) {
			s.log.Debug("audio queue full, dropped oldest chunk", "dropped_total", s.audio.Dropped())
		}

	case KindContentEnd:
		s.tmu.Lock()
		s.role = ""
		s.stage = ""
		s.tmu.Unlock()

	case KindError:
		var e ErrorEvent
		_ = json.Unmarshal(raw, &e)
		s.log.Warn("model reported error", "message", e.Message)
	}
}

func (s *Session) appendTranscript(role Role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	line := roleLabel(role) + ": " + text
	s.tmu.Lock()
	s.transcript = append(s.transcript, line)
	s.tmu.Unlock()
}

func roleLabel(r Role) string {
	if r == "" {
		r = RoleAssistant
	}
	v := strings.ToLower(string(r))
	return strings.ToUpper(v[:1]) + v[1:]
}

func isBargeIn(content string) bool {
	c := strings.TrimSpace(content)
	if !strings.HasPrefix(c, "{") {
		return false
	}
	var m struct {
		Interrupted bool `json:"interrupted"`
	}
	return json.Unmarshal([]byte(c), &m) == nil && m.Interrupted
}
