package voice

import (
	"context"
	"time"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/guard"
)

func (s *Service) Status(id string) (calls.Status, error) {
	return s.reg.Snapshot(id)
}

// Events returns a call's event log. Calls that were never seen are reported as not found.
func (s *Service) Events(ctx context.Context, id string) ([]audit.Event, error) {
	if c, ok := s.reg.Lookup(id); ok {
		id = c.CallID
	}
	if s.audit == nil {
		return nil, calls.ErrCallNotFound
	}
	evs, err := s.audit.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		if _, ok := s.reg.Lookup(id); !ok {
			return nil, calls.ErrCallNotFound
		}
	}
	return evs, nil
}

// Recent lists calls placed to phone within the frequency lookback.
func (s *Service) Recent(ctx context.Context, phone string) ([]guard.Record, error) {
	if s.guard == nil {
		return nil, nil
	}
	return s.guard.Recent(ctx, phone)
}

type Health struct {
	Status      string    `json:"status"`
	ActiveCalls int       `json:"active_calls"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      float64   `json:"uptime"`
}

func (s *Service) Health() Health {
	now := s.clock()
	return Health{
		Status:      "healthy",
		ActiveCalls: s.reg.Active(),
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(s.started).Seconds(),
	}
}
