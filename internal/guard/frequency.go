package guard

import (
	"context"
	"log/slog"
	"time"

	"esther-voice/pkg/logger"
	"esther-voice/pkg/utils"
)

const DefaultLookback = 24 * time.Hour

// FrequencyGuard stops the same number from being dialed twice within the lookback window.
type FrequencyGuard struct {
	store    Store
	lookback time.Duration
	exempt   map[string]struct{}
	clock    func() time.Time
	log      *slog.Logger
}

func NewFrequencyGuard(store Store, lookback time.Duration, exempt []string, log *slog.Logger) *FrequencyGuard {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if log == nil {
		log = slog.Default()
	}
	ex := make(map[string]struct{}, len(exempt))
	for _, n := range exempt {
		if k := utils.PhoneKey(n); k != "" {
			ex[k] = struct{}{}
		}
	}
	return &FrequencyGuard{store: store, lookback: lookback, exempt: ex, clock: time.Now, log: log}
}

// Exempt reports whether phone is never subject to the guard.
func (g *FrequencyGuard) Exempt(phone string) bool {
	_, ok := g.exempt[utils.PhoneKey(phone)]
	return ok
}

// RecentlyCalled reports whether phone was dialed within the lookback window.
// A store failure is logged and treated as not called.
func (g *FrequencyGuard) RecentlyCalled(ctx context.Context, phone string) bool {
	if g.Exempt(phone) {
		return false
	}
	recs, err := g.store.Since(ctx, utils.PhoneKey(phone), g.clock().Add(-g.lookback))
	if err != nil {
		g.log.Warn("call frequency check failed, allowing call", "phone", logger.MaskPhone(phone), "err", err)
		return false
	}
	return len(recs) > 0
}

// Record remembers that callID dialed phone now.
func (g *FrequencyGuard) Record(ctx context.Context, phone, callID string) error {
	return g.store.Add(ctx, utils.PhoneKey(phone), Record{CallID: callID, At: g.clock().UTC()}, g.lookback)
}

// Recent lists the calls to phone within the lookback window.
func (g *FrequencyGuard) Recent(ctx context.Context, phone string) ([]Record, error) {
	return g.store.Since(ctx, utils.PhoneKey(phone), g.clock().Add(-g.lookback))
}
