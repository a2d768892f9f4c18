package decay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsPeriodically(t *testing.T) {
	var calls int32
	apply := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}

	s := New(apply, 10*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerTriggerNowRunsImmediately(t *testing.T) {
	var calls int32
	apply := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}

	s := New(apply, time.Hour) // long interval so only the trigger fires
	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerSwallowsApplyErrors(t *testing.T) {
	apply := func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	}

	s := New(apply, 10*time.Millisecond)
	s.Start(context.Background())
	// no panic, no crash; Stop should still return promptly.
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	apply := func(ctx context.Context) (int, error) { return 0, nil }
	s := New(apply, time.Hour)
	s.Start(context.Background())
	s.Stop()
	s.Stop() // must not panic or block
}

func TestDefaultIntervalUsedWhenNonPositive(t *testing.T) {
	s := New(func(ctx context.Context) (int, error) { return 0, nil }, 0)
	require.Equal(t, DefaultInterval, s.interval)
}
