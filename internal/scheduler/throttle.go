package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pagevet/pagevet/internal/audit"
)

// DefaultMinOracleDelay is the minimum spacing between oracle calls.
const DefaultMinOracleDelay = 10 * time.Second

// Throttle enforces a minimum delay between consecutive oracle calls,
// measured from the end of the previous call. The previous-call timestamp is
// threaded through the session rather than held here, so overlapping scans
// do not slow each other down.
type Throttle struct {
	minDelay time.Duration
	clock    audit.Clock
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle builds a Throttle with the given spacing.
func NewThrottle(minDelay time.Duration, clock audit.Clock) *Throttle {
	if minDelay < 0 {
		minDelay = 0
	}
	return &Throttle{
		minDelay: minDelay,
		clock:    clock,
		sleep:    sleepCtx,
	}
}

// Wait blocks until minDelay has elapsed since lastCall and reports how long
// it slept. A zero lastCall means no previous call; the first call is never
// delayed.
func (t *Throttle) Wait(ctx context.Context, lastCall time.Time) (time.Duration, error) {
	if t.minDelay <= 0 || lastCall.IsZero() {
		return 0, nil
	}
	wait := t.minDelay - t.clock.Now().Sub(lastCall)
	if wait <= 0 {
		return 0, nil
	}
	if err := t.sleep(ctx, wait); err != nil {
		return 0, fmt.Errorf("throttle wait: %w", err)
	}
	return wait, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
