package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestThrottle(clock *fixedClock, slept *[]time.Duration) *Throttle {
	th := NewThrottle(10*time.Second, clock)
	th.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return th
}

func TestThrottleFirstCallNotDelayed(t *testing.T) {
	var slept []time.Duration
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	th := newTestThrottle(clock, &slept)

	waited, err := th.Wait(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Zero(t, waited)
	require.Empty(t, slept)
}

func TestThrottleWaitsRemainderOfWindow(t *testing.T) {
	var slept []time.Duration
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	th := newTestThrottle(clock, &slept)

	lastCall := clock.now.Add(-4 * time.Second)
	waited, err := th.Wait(context.Background(), lastCall)
	require.NoError(t, err)
	require.Equal(t, 6*time.Second, waited)
	require.Equal(t, []time.Duration{6 * time.Second}, slept)
}

func TestThrottleSkipsWhenWindowElapsed(t *testing.T) {
	var slept []time.Duration
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	th := newTestThrottle(clock, &slept)

	waited, err := th.Wait(context.Background(), clock.now.Add(-11*time.Second))
	require.NoError(t, err)
	require.Zero(t, waited)
	require.Empty(t, slept)
}

func TestThrottleZeroDelayDisabled(t *testing.T) {
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	th := NewThrottle(0, clock)
	waited, err := th.Wait(context.Background(), clock.now)
	require.NoError(t, err)
	require.Zero(t, waited)
}
