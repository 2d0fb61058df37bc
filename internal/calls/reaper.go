package calls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleParser accepts standard 5-field cron expressions.
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ReaperConfig bounds how long calls may stay registered.
type ReaperConfig struct {
	Schedule string
	// MaxDuration ends calls that have run longer than this.
	MaxDuration time.Duration
	// PendingTimeout ends calls whose media websocket never attached.
	PendingTimeout time.Duration
}

// FinalizeFunc tears a stale call down; it is expected to remove the call from the registry.
type FinalizeFunc func(ctx context.Context, c *Call, reason string)

// Reaper periodically ends calls that were never torn down by the provider.
type Reaper struct {
	reg      *Registry
	cfg      ReaperConfig
	finalize FinalizeFunc
	log      *slog.Logger
	clock    func() time.Time

	cron *cron.Cron
}

func NewReaper(reg *Registry, cfg ReaperConfig, finalize FinalizeFunc, log *slog.Logger) (*Reaper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "* * * * *"
	}
	if _, err := ScheduleParser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("calls: reaper schedule %q: %w", cfg.Schedule, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{reg: reg, cfg: cfg, finalize: finalize, log: log, clock: time.Now}, nil
}

func (r *Reaper) Start() error {
	r.cron = cron.New(cron.WithParser(ScheduleParser))
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.run); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("call reaper started", "schedule", r.cfg.Schedule)
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (r *Reaper) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Info("call reaper stopped")
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if n := r.Sweep(ctx); n > 0 {
		r.log.Info("reaped stale calls", "count", n)
	}
}

// Sweep finalizes every stale call and returns how many it touched.
func (r *Reaper) Sweep(ctx context.Context) int {
	now := r.clock()
	n := 0
	for _, c := range r.reg.List() {
		reason := r.staleReason(c, now)
		if reason == "" {
			continue
		}
		r.log.Warn("reaping call", "call_id", c.CallID, "reason", reason, "age", c.Age(now).String())
		if r.finalize != nil {
			r.finalize(ctx, c, reason)
		} else {
			_ = c.End(ctx)
			r.reg.Remove(c.CallID)
		}
		n++
	}
	return n
}

func (r *Reaper) staleReason(c *Call, now time.Time) string {
	age := c.Age(now)
	if r.cfg.MaxDuration > 0 && age > r.cfg.MaxDuration {
		return "max_duration"
	}
	if r.cfg.PendingTimeout > 0 && !c.Attached() && age > r.cfg.PendingTimeout {
		return "never_attached"
	}
	return ""
}
