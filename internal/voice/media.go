package voice

import (
	"context"
	"fmt"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/relay"
	"esther-voice/internal/sonic"
	"esther-voice/pkg/logger"
)

// AttachMedia runs a call's media websocket: it opens the model session, relays audio both
// ways and returns when either side hangs up. The call stays registered with its transcript
// until the provider reports a terminal status or the reaper removes it.
func (s *Service) AttachMedia(ctx context.Context, callID string, conn relay.Conn) error {
	c, ok := s.reg.Lookup(callID)
	if !ok {
		return calls.ErrCallNotFound
	}
	if s.convs == nil {
		return fmt.Errorf("voice: no conversation factory configured")
	}
	log := logger.ForCall(s.log, c.CallID)

	conv := s.convs(c.CallID, sonic.Config{
		SystemPrompt:   c.Prompt,
		Inference:      c.Inference,
		VoiceID:        s.opts.VoiceID,
		AudioQueueSize: s.opts.AudioQueueSize,
	}, log)
	if err := c.Attach(conv); err != nil {
		return err
	}

	if err := conv.Start(ctx); err != nil {
		c.Detach()
		s.record(ctx, c.CallID, audit.EventTypeSessionFailed, "model session did not start", "error", err.Error())
		log.Error("model session start failed", "err", err)
		return err
	}
	s.record(ctx, c.CallID, audit.EventTypeSessionStarted, "model session started")
	log.Info("media attached")

	err := relay.New(conn, conv, s.opts.Relay, log).Run(ctx)
	c.Detach()
	log.Info("media detached", "transcript_lines", len(c.Transcript()))
	return err
}
