// Package voice wires calls, the speech model and the telephony provider together.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/guard"
	"esther-voice/internal/prompts"
	"esther-voice/internal/relay"
	"esther-voice/internal/sonic"
	"esther-voice/internal/telephony"
)

var (
	ErrInvalidRequest = errors.New("voice: invalid request")
	ErrRecentlyCalled = errors.New("voice: number was called recently")
	ErrAtCapacity     = errors.New("voice: too many concurrent calls")
	ErrProvider       = errors.New("voice: telephony provider failed")
)

// Conversation is a model session as the voice service drives it.
type Conversation interface {
	Start(ctx context.Context) error
	SendAudio(ctx context.Context, pcm []byte) error
	SendText(ctx context.Context, text string) error
	NextAudio(ctx context.Context) ([]byte, error)
	Transcript() []string
	End(ctx context.Context) error
}

// ConversationFactory creates the model session for a call when its media stream attaches.
type ConversationFactory func(callID string, cfg sonic.Config, log *slog.Logger) Conversation

// SonicConversations opens Nova Sonic sessions over t.
func SonicConversations(t sonic.Transport) ConversationFactory {
	return func(callID string, cfg sonic.Config, log *slog.Logger) Conversation {
		return sonic.NewSession(callID, t, cfg, log)
	}
}

type Deps struct {
	Registry      *calls.Registry
	Provider      telephony.Provider
	Conversations ConversationFactory
	Prompts       *prompts.Service
	Guard         *guard.FrequencyGuard
	Limiter       guard.Limiter
	Audit         *audit.Service
	Log           *slog.Logger
}

type Options struct {
	WebhookBaseURL   string
	OutboundNumber   string
	InboundGreeting  string
	InboundPrompt    string
	DefaultAssistant string
	Inference        sonic.InferenceConfig
	VoiceID          string
	AudioQueueSize   int
	RecordCalls      bool
	Relay            relay.Options
}

type Service struct {
	reg     *calls.Registry
	tel     telephony.Provider
	convs   ConversationFactory
	prompts *prompts.Service
	guard   *guard.FrequencyGuard
	limiter guard.Limiter
	audit   *audit.Service
	log     *slog.Logger
	opts    Options

	clock   func() time.Time
	started time.Time

	mu   sync.Mutex
	held map[string]struct{}
}

func NewService(d Deps, opts Options) *Service {
	if d.Registry == nil {
		d.Registry = calls.NewRegistry()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Limiter == nil {
		d.Limiter = guard.NewLocalLimiter(0)
	}
	if opts.InboundPrompt == "" {
		opts.InboundPrompt = prompts.DefaultInboundPrompt
	}
	if opts.Inference == (sonic.InferenceConfig{}) {
		opts.Inference = sonic.DefaultInference()
	}
	return &Service{
		reg:     d.Registry,
		tel:     d.Provider,
		convs:   d.Conversations,
		prompts: d.Prompts,
		guard:   d.Guard,
		limiter: d.Limiter,
		audit:   d.Audit,
		log:     d.Log,
		opts:    opts,
		clock:   time.Now,
		started: time.Now(),
		held:    make(map[string]struct{}),
	}
}

func (s *Service) Registry() *calls.Registry { return s.reg }

func (s *Service) record(ctx context.Context, callID string, typ audit.EventType, msg string, kv ...string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, callID, typ, msg, kv...); err != nil {
		s.log.Warn("call event not recorded", "call_id", callID, "type", string(typ), "err", err)
	}
}

// acquire takes a concurrency slot for callID. Limiter failures are logged and allow the call.
func (s *Service) acquire(ctx context.Context, callID string) bool {
	ok, err := s.limiter.Acquire(ctx)
	if err != nil {
		s.log.Warn("concurrency check failed, allowing call", "call_id", callID, "err", err)
		return true
	}
	if !ok {
		return false
	}
	s.mu.Lock()
	s.held[callID] = struct{}{}
	s.mu.Unlock()
	return true
}

func (s *Service) release(ctx context.Context, callID string) {
	s.mu.Lock()
	_, ok := s.held[callID]
	delete(s.held, callID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.limiter.Release(ctx); err != nil {
		s.log.Warn("concurrency slot not released", "call_id", callID, "err", err)
	}
}
