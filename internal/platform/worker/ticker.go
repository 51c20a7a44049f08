package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"

	// errFmtSingleTickerLoop is the error format for single ticker loop context errors.
	errFmtSingleTickerLoop = "single ticker loop %s: %w"
)

// Ticker is the part of time.Ticker the loops depend on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ManualTicker fires only when Tick is called. Tick blocks until the loop
// receives the value, so one Tick is exactly one loop iteration.
type ManualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

// NewManualTicker creates a ticker for tests.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

// Factory returns a TickerFactory handing out this ticker.
func (m *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

func (m *ManualTicker) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

// Tick delivers one tick. It returns false if the ticker was stopped or ctx ended first.
func (m *ManualTicker) Tick(ctx context.Context) bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-m.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// SingleTickerConfig configures a single-ticker loop.
type SingleTickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Interval is the ticker interval.
	Interval time.Duration

	// OnTick is called when the ticker fires.
	OnTick func(ctx context.Context)

	// RunOnStart runs OnTick immediately when starting.
	RunOnStart bool

	// OnStart is called once when the loop starts.
	OnStart func(ctx context.Context)

	// OnStop is called once when the loop exits.
	OnStop func()

	// NewTicker overrides the ticker implementation (tests).
	NewTicker TickerFactory

	// Logger for the worker.
	Logger *zerolog.Logger
}

// SingleTickerLoop runs OnTick every Interval until ctx is canceled.
// Returns a wrapped context error when the context is canceled.
func SingleTickerLoop(ctx context.Context, cfg SingleTickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Dur("interval", cfg.Interval).Msg("starting single ticker loop")

	runOnStart(ctx, cfg.OnStart)
	defer runOnStop(cfg.OnStop, logger, cfg.Name, "single ticker loop stopped")

	if cfg.RunOnStart && cfg.OnTick != nil {
		cfg.OnTick(ctx)
	}

	newTicker := cfg.NewTicker
	if newTicker == nil {
		newTicker = NewRealTicker
	}

	ticker := newTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf(errFmtSingleTickerLoop, cfg.Name, ctx.Err())
		case <-ticker.C():
			if cfg.OnTick != nil {
				cfg.OnTick(ctx)
			}
		}
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}

// runOnStart calls the onStart callback if not nil.
func runOnStart(ctx context.Context, onStart func(ctx context.Context)) {
	if onStart != nil {
		onStart(ctx)
	}
}

// runOnStop calls the onStop callback and logs the stop message.
func runOnStop(onStop func(), logger *zerolog.Logger, name, msg string) {
	if onStop != nil {
		onStop()
	}

	logger.Info().Str(logFieldWorker, name).Msg(msg)
}
