package telephony

import (
	"context"
	"errors"
)

// Provider is the telephony surface the voice service depends on.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic.
type Provider interface {
	Name() string
	CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
	HangupCall(ctx context.Context, providerCallID string) error
}

var (
	ErrProviderRejected = errors.New("telephony: provider rejected request")
	ErrNotConfigured    = errors.New("telephony: provider not configured")
)

// OutboundCallRequest asks the provider to dial To and fetch call control from AnswerURL once answered.
type OutboundCallRequest struct {
	// CallID is the internal call identifier, echoed back on AnswerURL and EventURL.
	CallID string

	To   string
	From string

	AnswerURL string
	EventURL  string
}

type OutboundCallResult struct {
	ProviderCallID string `json:"uuid"`
	ConversationID string `json:"conversation_uuid"`
	Status         string `json:"status"`
	Direction      string `json:"direction"`
}
