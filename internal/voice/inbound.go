package voice

import (
	"context"
	"errors"
	"fmt"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/telephony"
	"esther-voice/pkg/logger"
)

const (
	configErrorText = "Call configuration error."
	busyText        = "All of our lines are busy right now. Please call again later."
)

type InboundRequest struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RegisterInbound registers an inbound call under the provider's id and returns the call
// control that greets the caller and connects the media stream. Registering the same id twice
// returns the same call control.
func (s *Service) RegisterInbound(ctx context.Context, req InboundRequest) (telephony.NCCO, error) {
	if req.CallID == "" || req.From == "" {
		return nil, fmt.Errorf("%w: callId and from are required", ErrInvalidRequest)
	}
	if err := s.registerInbound(ctx, req.CallID, "", req.From, req.To); err != nil && !errors.Is(err, calls.ErrCallExists) {
		return nil, err
	}
	return s.answerNCCO(req.CallID, s.opts.InboundGreeting)
}

func (s *Service) registerInbound(ctx context.Context, callID, conversationID, from, to string) error {
	if _, ok := s.reg.Lookup(callID); ok {
		return calls.ErrCallExists
	}
	if !s.acquire(ctx, callID) {
		s.record(ctx, callID, audit.EventTypeRejected, "concurrency cap reached", "reason", "at_capacity")
		return ErrAtCapacity
	}
	_, err := s.reg.Register(calls.Metadata{
		CallID:         callID,
		ProviderCallID: callID,
		ConversationID: conversationID,
		From:           from,
		To:             to,
		PhoneNumber:    from,
		Direction:      calls.DirectionInbound,
		Prompt:         s.opts.InboundPrompt,
		Inference:      s.opts.Inference,
	})
	if err != nil {
		s.release(ctx, callID)
		return err
	}
	s.record(ctx, callID, audit.EventTypeRegistered, "inbound call answered", "direction", string(calls.DirectionInbound))
	logger.ForCall(s.log, callID).Info("inbound call registered", "from", logger.MaskPhone(from))
	return nil
}

// Answer builds the call control for the provider's answer webhook. It never fails:
// problems are spoken to the caller instead.
//
// Outbound calls must already be registered, found either by the call_id this service put
// on the answer url or by the provider uuid. Unknown inbound calls are registered here.
func (s *Service) Answer(ctx context.Context, a telephony.AnswerWebhook, outbound bool) telephony.NCCO {
	if outbound || a.CallID != "" {
		id := a.CallID
		if id == "" {
			id = a.UUID
		}
		c, ok := s.reg.Lookup(id)
		if !ok {
			s.log.Warn("answer for unknown outbound call", "call_id", id, "uuid", a.UUID)
			return telephony.ErrorNCCO(configErrorText)
		}
		if a.UUID != "" {
			_ = s.reg.Alias(a.UUID, c.CallID)
		}
		c.SetStatus(calls.CallStatusAnswered)
		s.record(ctx, c.CallID, audit.EventTypeStatusChanged, "answered", "status", string(calls.CallStatusAnswered))
		ncco, err := s.answerNCCO(c.CallID, "")
		if err != nil {
			s.log.Error("answer ncco failed", "call_id", c.CallID, "err", err)
			return telephony.ErrorNCCO(configErrorText)
		}
		return ncco
	}

	if _, ok := s.reg.Lookup(a.UUID); !ok {
		err := s.registerInbound(ctx, a.UUID, a.ConversationUUID, a.From, a.To)
		if errors.Is(err, ErrAtCapacity) {
			return telephony.ErrorNCCO(busyText)
		}
		if err != nil && !errors.Is(err, calls.ErrCallExists) {
			s.log.Error("inbound registration failed", "call_id", a.UUID, "err", err)
			return telephony.ErrorNCCO(configErrorText)
		}
	}
	ncco, err := s.answerNCCO(a.UUID, s.opts.InboundGreeting)
	if err != nil {
		s.log.Error("answer ncco failed", "call_id", a.UUID, "err", err)
		return telephony.ErrorNCCO(configErrorText)
	}
	return ncco
}

func (s *Service) answerNCCO(callID, greeting string) (telephony.NCCO, error) {
	media, err := telephony.MediaURL(s.opts.WebhookBaseURL, callID)
	if err != nil {
		return nil, err
	}
	opts := telephony.AnswerOptions{CallID: callID, Greeting: greeting, MediaURL: media}
	if s.opts.RecordCalls {
		rec, err := telephony.WebhookURL(s.opts.WebhookBaseURL, "/webhooks/recording", callID)
		if err != nil {
			return nil, err
		}
		opts.RecordingURL = rec
	}
	return telephony.AnswerNCCO(opts), nil
}
