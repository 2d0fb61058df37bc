package voice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/prompts"
	"esther-voice/internal/sonic"
	"esther-voice/internal/telephony"
	"esther-voice/pkg/logger"
	"esther-voice/pkg/utils"
)

// InferenceParams overrides the model sampling configuration for one call.
type InferenceParams struct {
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func (p *InferenceParams) apply(base sonic.InferenceConfig) (sonic.InferenceConfig, error) {
	if p == nil {
		return base, nil
	}
	out := base
	if p.MaxTokens != nil {
		if *p.MaxTokens <= 0 {
			return base, fmt.Errorf("%w: maxTokens must be > 0", ErrInvalidRequest)
		}
		out.MaxTokens = *p.MaxTokens
	}
	if p.TopP != nil {
		if *p.TopP <= 0 || *p.TopP > 1 {
			return base, fmt.Errorf("%w: topP must be in (0, 1]", ErrInvalidRequest)
		}
		out.TopP = *p.TopP
	}
	if p.Temperature != nil {
		if *p.Temperature < 0 || *p.Temperature > 1 {
			return base, fmt.Errorf("%w: temperature must be in [0, 1]", ErrInvalidRequest)
		}
		out.Temperature = *p.Temperature
	}
	return out, nil
}

type OutboundRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	// Prompt is the system prompt. When empty the prompt of Assistant is used.
	Prompt          string           `json:"prompt"`
	Assistant       string           `json:"assistant"`
	NovaSonicParams *InferenceParams `json:"novaSonicParams"`
}

type OutboundResult struct {
	CallID         string `json:"callId"`
	ProviderCallID string `json:"providerCallId"`
	PhoneNumber    string `json:"phoneNumber"`
	CallStatus     string `json:"callStatus"`
	Transcript     string `json:"transcript"`
	Message        string `json:"message"`
}

// StartOutbound registers a call and asks the provider to dial it. The provider fetches
// call control from the answer webhook once the callee picks up.
func (s *Service) StartOutbound(ctx context.Context, req OutboundRequest) (OutboundResult, error) {
	if len(utils.DigitsOnly(req.PhoneNumber)) < 10 {
		return OutboundResult{}, fmt.Errorf("%w: phoneNumber must have at least 10 digits", ErrInvalidRequest)
	}
	inference, err := req.NovaSonicParams.apply(s.opts.Inference)
	if err != nil {
		return OutboundResult{}, err
	}
	if s.tel == nil {
		return OutboundResult{}, fmt.Errorf("%w: %w", ErrProvider, telephony.ErrNotConfigured)
	}

	callID := "call-" + uuid.NewString()
	log := logger.ForCall(s.log, callID).With("phone", logger.MaskPhone(req.PhoneNumber))

	if s.guard != nil && s.guard.RecentlyCalled(ctx, req.PhoneNumber) {
		s.record(ctx, callID, audit.EventTypeRejected, "number called within lookback", "reason", "recently_called")
		log.Info("outbound call rejected", "reason", "recently_called")
		return OutboundResult{}, ErrRecentlyCalled
	}
	if !s.acquire(ctx, callID) {
		s.record(ctx, callID, audit.EventTypeRejected, "concurrency cap reached", "reason", "at_capacity")
		log.Info("outbound call rejected", "reason", "at_capacity")
		return OutboundResult{}, ErrAtCapacity
	}

	prompt := req.Prompt
	if prompt == "" {
		assistant := req.Assistant
		if assistant == "" {
			assistant = s.opts.DefaultAssistant
		}
		prompt = s.prompt(ctx, assistant)
	}

	call, err := s.reg.Register(calls.Metadata{
		CallID:      callID,
		To:          req.PhoneNumber,
		From:        s.opts.OutboundNumber,
		PhoneNumber: req.PhoneNumber,
		Direction:   calls.DirectionOutbound,
		Prompt:      prompt,
		Inference:   inference,
	})
	if err != nil {
		s.release(ctx, callID)
		return OutboundResult{}, err
	}

	res, err := s.dial(ctx, callID, req.PhoneNumber)
	if err != nil {
		s.reg.Remove(callID)
		s.release(ctx, callID)
		s.record(ctx, callID, audit.EventTypeRejected, "provider did not place the call", "reason", "provider_error", "error", err.Error())
		log.Error("outbound call failed", "err", err)
		return OutboundResult{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	if err := s.reg.Alias(res.ProviderCallID, callID); err != nil {
		log.Warn("provider id not aliased", "err", err)
	}
	if s.guard != nil {
		if err := s.guard.Record(ctx, req.PhoneNumber, callID); err != nil {
			log.Warn("call frequency not recorded", "err", err)
		}
	}
	status := res.Status
	if status == "" || status == "started" {
		status = string(calls.CallStatusInitiated)
	}
	call.SetStatus(calls.CallStatus(status))
	s.record(ctx, callID, audit.EventTypeRegistered, "outbound call placed",
		"direction", string(calls.DirectionOutbound), "provider_call_id", res.ProviderCallID)
	log.Info("outbound call placed", "provider_call_id", res.ProviderCallID)

	return OutboundResult{
		CallID:         callID,
		ProviderCallID: res.ProviderCallID,
		PhoneNumber:    req.PhoneNumber,
		CallStatus:     status,
		Message:        "Call initiated. Audio streaming will begin when call is answered.",
	}, nil
}

func (s *Service) dial(ctx context.Context, callID, phone string) (telephony.OutboundCallResult, error) {
	answerURL, err := telephony.WebhookURL(s.opts.WebhookBaseURL, "/outbound/webhooks/answer", callID)
	if err != nil {
		return telephony.OutboundCallResult{}, err
	}
	eventURL, err := telephony.WebhookURL(s.opts.WebhookBaseURL, "/outbound/webhooks/events", callID)
	if err != nil {
		return telephony.OutboundCallResult{}, err
	}
	return s.tel.CreateOutboundCall(ctx, telephony.OutboundCallRequest{
		CallID:    callID,
		To:        phone,
		From:      s.opts.OutboundNumber,
		AnswerURL: answerURL,
		EventURL:  eventURL,
	})
}

func (s *Service) prompt(ctx context.Context, assistant string) string {
	if s.prompts == nil {
		return prompts.DefaultPrompt
	}
	return s.prompts.Get(ctx, assistant)
}
