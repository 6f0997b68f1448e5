package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(ctx context.Context) error {
			calls++
			if calls >= 3 {
				cancel()
			}

			return nil
		},
	}

	err := Loop(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestLoop_OnErrorCanAbort(t *testing.T) {
	boom := errors.New("boom")

	cfg := Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(ctx context.Context) error {
			return boom
		},
		OnError: func(err error) bool {
			return false
		},
	}

	err := Loop(context.Background(), cfg)
	assert.ErrorIs(t, err, boom)
}

func TestLoop_RunsPeriodicTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ran := 0
	cfg := Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		PeriodicTasks: []PeriodicTask{{
			Name:     "tick",
			Interval: time.Nanosecond,
			Run: func(ctx context.Context) {
				ran++
				if ran >= 2 {
					cancel()
				}
			},
		}},
	}

	err := Loop(ctx, cfg)
	require.Error(t, err)
	assert.GreaterOrEqual(t, ran, 2)
}

func TestWait_ZeroDurationReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, Wait(ctx, 0))
}

func TestRunWithTimeout_PropagatesDeadline(t *testing.T) {
	err := RunWithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
