package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 0, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)

		return nil
	})
	require.NoError(t, err)

	err = RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecoverPanic(t *testing.T) {
	logger := zerolog.Nop()

	assert.NotPanics(t, func() {
		defer RecoverPanic(&logger, "test")

		panic("boom")
	})
}

func TestSingleTickerLoop_RunsOnEveryTick(t *testing.T) {
	ticker := NewManualTicker()

	var (
		ticks   atomic.Int32
		started atomic.Bool
		stopped atomic.Bool
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- SingleTickerLoop(ctx, SingleTickerConfig{
			Name:       "test",
			Interval:   time.Hour,
			RunOnStart: true,
			NewTicker:  ticker.Factory(),
			OnStart:    func(context.Context) { started.Store(true) },
			OnStop:     func() { stopped.Store(true) },
			OnTick:     func(context.Context) { ticks.Add(1) },
		})
	}()

	tickCtx, tickCancel := context.WithTimeout(context.Background(), time.Second)
	defer tickCancel()

	require.True(t, ticker.Tick(tickCtx))
	require.True(t, ticker.Tick(tickCtx))

	cancel()

	err := <-done
	require.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "single ticker loop test")

	assert.True(t, started.Load())
	assert.True(t, stopped.Load())
	assert.GreaterOrEqual(t, ticks.Load(), int32(2))
	assert.LessOrEqual(t, ticks.Load(), int32(3))
	assert.False(t, ticker.Tick(tickCtx))
}
