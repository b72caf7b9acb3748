package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

// stale lists the states the sweeper fails once their wait deadline passes.
// A finalizing session past its deadline was abandoned mid-attempt.
var stale = []models.CheckoutState{models.StateWaitingForProcessor, models.StateFinalizing}

// ExpireWaiting fails every waiting or stranded finalizing session whose
// deadline passed before now and returns how many it moved.
func (o *Orchestrator) ExpireWaiting(ctx context.Context, now time.Time) (int, error) {
	l := logging.FromContext(ctx)
	n := 0
	for _, state := range stale {
		expired, err := o.sessions.ListExpiredSessions(ctx, state, now)
		if err != nil {
			return n, err
		}
		for _, e := range expired {
			ok, err := o.expire(ctx, e, now)
			if err != nil {
				l.Error("expire_checkout_error", "checkout_id", e.ID, "error", err)
				continue
			}
			if ok {
				n++
			}
		}
	}
	return n, nil
}

func (o *Orchestrator) expire(ctx context.Context, e models.CheckoutSession, now time.Time) (bool, error) {
	unlock := o.locks.lock(e.ID)
	defer unlock()

	// reload: the processor event may have won the race
	s, err := o.load(ctx, e.Owner, e.ID)
	if err != nil {
		return false, err
	}
	if s.State != e.State || s.WaitDeadline == nil || !s.WaitDeadline.Before(now) {
		return false, nil
	}

	if s.State == models.StateFinalizing {
		s.LastError = "finalization interrupted"
	} else {
		s.LastError = "payment wait timed out"
	}
	if err := o.advance(ctx, s, models.StateFailed); err != nil {
		return false, err
	}
	o.listeners.release(s.ID)

	logging.FromContext(ctx).Warn("checkout_expired", "checkout_id", s.ID, "from", e.State, "deadline", s.WaitDeadline)
	o.publish(ctx, "checkout_failed", s)
	return true, nil
}

type Sweeper struct {
	o    *Orchestrator
	tick time.Duration
	log  *slog.Logger
}

func NewSweeper(o *Orchestrator, tick time.Duration, log *slog.Logger) *Sweeper {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Sweeper{o: o, tick: tick, log: log}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	ctx = logging.IntoContext(ctx, s.log.With("component", "sweeper"))
	for {
		select {
		case <-ticker.C:
			n, err := s.o.ExpireWaiting(ctx, s.o.cfg.Now())
			if err != nil {
				s.log.Error("sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("sweep_expired", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
