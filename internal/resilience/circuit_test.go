package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("downstream unavailable")

func TestBreakerTransitions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker("smtp-test", 2, 0.5, time.Minute)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	fail := func(context.Context) error { return errDown }
	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Do(ctx, fail), ErrOpenCircuit)

	now = now.Add(time.Minute)
	require.True(t, b.Allow(ctx), "trial call admitted after cool off")
	require.False(t, b.Allow(ctx), "only one trial call at a time")
	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())

	require.Equal(t, float64(1), testutil.ToFloat64(BreakerTransitions.WithLabelValues("smtp-test", "closed", "open")))
	require.Equal(t, float64(0), testutil.ToFloat64(BreakerState.WithLabelValues("smtp-test")))
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker("trial-test", 1, 1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	now = now.Add(2 * time.Second)
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return errDown }), errDown)
	require.Equal(t, Open, b.State())
}

func TestBreakerIgnoresCancelledCalls(t *testing.T) {
	b := NewBreaker("cancel-test", 1, 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Closed, b.State())
}
