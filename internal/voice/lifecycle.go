package voice

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/telephony"
	"esther-voice/pkg/logger"
)

// HandleStatus applies a provider status event. Terminal statuses end and remove the call.
func (s *Service) HandleStatus(ctx context.Context, e telephony.EventWebhook) {
	id := e.CallID
	if id == "" {
		id = e.UUID
	}
	c, ok := s.reg.Lookup(id)
	if !ok {
		s.log.Debug("status for unknown call", "call_id", id, "status", e.Status)
		return
	}
	if e.Status == "" {
		return
	}
	c.SetStatus(calls.CallStatus(e.Status))
	s.record(ctx, c.CallID, audit.EventTypeStatusChanged, e.Status, "status", e.Status)
	logger.ForCall(s.log, c.CallID).Info("call status", "status", e.Status)

	if telephony.IsTerminal(e.Status) {
		s.Finalize(ctx, c, e.Status)
	}
}

// AppendRecording adds the recording line to a live call's transcript. Recordings for calls
// that have already been removed are still kept in the call's event log.
func (s *Service) AppendRecording(ctx context.Context, rec telephony.RecordingWebhook) {
	id := rec.CallID
	if id == "" {
		id = rec.UUID
	}
	line := rec.TranscriptLine()
	if c, ok := s.reg.Lookup(id); ok {
		c.AppendNote(line)
		id = c.CallID
	}
	if id == "" {
		s.log.Warn("recording without call id", "recording_uuid", rec.RecordingUUID)
		return
	}
	s.record(ctx, id, audit.EventTypeRecording, line, "recording_url", rec.RecordingURL, "duration", rec.Duration.String())
}

// Hangup asks the provider to end the call and tears it down locally either way.
func (s *Service) Hangup(ctx context.Context, id string) error {
	c, ok := s.reg.Lookup(id)
	if !ok {
		return calls.ErrCallNotFound
	}
	var provErr error
	if s.tel != nil {
		if pid := c.ProviderID(); pid != "" {
			provErr = s.tel.HangupCall(ctx, pid)
		}
	}
	s.Finalize(ctx, c, "hangup")
	if provErr != nil {
		return fmt.Errorf("%w: %w", ErrProvider, provErr)
	}
	return nil
}

// Finalize ends the call's conversation, removes it and releases its slot.
// Only the first call for a given call has any effect.
func (s *Service) Finalize(ctx context.Context, c *calls.Call, reason string) {
	if _, ok := s.reg.Remove(c.CallID); !ok {
		return
	}
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drainTimeout())
	defer cancel()
	log := logger.ForCall(s.log, c.CallID)
	if err := c.End(endCtx); err != nil {
		log.Warn("conversation end failed", "err", err)
	}
	c.Detach()
	s.release(endCtx, c.CallID)

	now := s.clock()
	transcript := c.Transcript()
	dur := c.Age(now).Seconds()
	s.record(endCtx, c.CallID, audit.EventTypeEnded, reason,
		"reason", reason,
		"duration_seconds", strconv.FormatFloat(dur, 'f', 1, 64),
		"transcript_lines", strconv.Itoa(len(transcript)))
	log.Info("call ended", "reason", reason, "duration_seconds", dur, "transcript", strings.Join(transcript, " "))
}

// Shutdown finalizes every live call.
func (s *Service) Shutdown(ctx context.Context) {
	for _, c := range s.reg.List() {
		s.Finalize(ctx, c, "shutdown")
	}
}

func (s *Service) drainTimeout() time.Duration {
	if s.opts.Relay.DrainTimeout > 0 {
		return s.opts.Relay.DrainTimeout
	}
	return 5 * time.Second
}
