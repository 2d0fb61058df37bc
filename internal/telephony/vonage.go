package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esther-voice/pkg/utils"
)

const DefaultVonageBaseURL = "https://api.nexmo.com"

type VonageConfig struct {
	BaseURL    string
	FromNumber string
	HTTPClient *http.Client
}

// VonageClient drives the Vonage Voice API over REST.
type VonageClient struct {
	baseURL string
	from    string
	signer  *TokenSigner
	http    *http.Client
	now     func() time.Time
}

func NewVonageClient(signer *TokenSigner, cfg VonageConfig) *VonageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVonageBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &VonageClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		from:    cfg.FromNumber,
		signer:  signer,
		http:    cfg.HTTPClient,
		now:     time.Now,
	}
}

func (c *VonageClient) Name() string { return "vonage" }

type phoneEndpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type createCallBody struct {
	To           []phoneEndpoint `json:"to"`
	From         phoneEndpoint   `json:"from"`
	AnswerURL    []string        `json:"answer_url"`
	AnswerMethod string          `json:"answer_method"`
	EventURL     []string        `json:"event_url"`
	EventMethod  string          `json:"event_method"`
}

func (c *VonageClient) CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	from := req.From
	if from == "" {
		from = c.from
	}
	body := createCallBody{
		To:           []phoneEndpoint{{Type: "phone", Number: utils.DialNumber(req.To)}},
		From:         phoneEndpoint{Type: "phone", Number: utils.DialNumber(from)},
		AnswerURL:    []string{req.AnswerURL},
		AnswerMethod: http.MethodGet,
		EventURL:     []string{req.EventURL},
		EventMethod:  http.MethodPost,
	}
	var out OutboundCallResult
	if err := c.do(ctx, http.MethodPost, "/v1/calls", body, &out); err != nil {
		return OutboundCallResult{}, err
	}
	if out.ProviderCallID == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: create call response without uuid", ErrProviderRejected)
	}
	return out, nil
}

func (c *VonageClient) HangupCall(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return fmt.Errorf("telephony: provider call id is required")
	}
	return c.do(ctx, http.MethodPut, "/v1/calls/"+url.PathEscape(providerCallID), map[string]string{"action": "hangup"}, nil)
}

func (c *VonageClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.signer == nil {
		return ErrNotConfigured
	}
	token, err := c.signer.Sign(c.now())
	if err != nil {
		return fmt.Errorf("telephony: sign vonage token: %w", err)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: vonage %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: vonage %s %s: status %d: %s", ErrProviderRejected, method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("telephony: decode vonage response: %w", err)
	}
	return nil
}
