package metricsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
)

// BreakerConfig tunes the circuit breaker around metric fetches.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig opens after 60% failures over at least 10 requests
// and probes again after two minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "metrics-store",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerSource wraps a MetricsRepository with a circuit breaker.
// A rejected call surfaces as a transient fetch failure wrapping ErrCircuitBreakerOpen.
type BreakerSource struct {
	next ports.MetricsRepository
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerSource wraps next.
func NewBreakerSource(next ports.MetricsRepository, cfg BreakerConfig, logger *zerolog.Logger) *BreakerSource {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	observability.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			ratio := float64(counts.TotalFailures) / float64(counts.Requests)

			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")

			observability.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
		// Canceled fetches say nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerSource{next: next, cb: cb, name: cfg.Name}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State exposes the breaker state for health reporting.
func (b *BreakerSource) State() string {
	return b.cb.State().String()
}

// Ready fails while the breaker is open and rejecting fetches.
func (b *BreakerSource) Ready(context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s %s: %w", b.name, b.State(), coreerrors.ErrCircuitBreakerOpen)
	}

	return nil
}

func execute[T any](b *BreakerSource, fn func() (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		v, err := fn()

		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()

			return zero, fmt.Errorf("%s: %w", b.name, coreerrors.ErrCircuitBreakerOpen)
		}

		observability.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()

		return zero, err
	}

	observability.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()

	typed, ok := res.(T)
	if !ok && res != nil {
		return zero, fmt.Errorf("circuit breaker result %T: %w", res, coreerrors.ErrUnexpectedType)
	}

	return typed, nil
}

func (b *BreakerSource) LatestSnapshots(ctx context.Context, entityID string, platforms []domain.Platform) ([]domain.MetricSnapshot, error) {
	return execute(b, func() ([]domain.MetricSnapshot, error) {
		return b.next.LatestSnapshots(ctx, entityID, platforms)
	})
}

func (b *BreakerSource) Deltas(ctx context.Context, entityID string, platforms []domain.Platform, window domain.DeltaWindow) ([]domain.DeltaRow, error) {
	return execute(b, func() ([]domain.DeltaRow, error) {
		return b.next.Deltas(ctx, entityID, platforms, window)
	})
}

func (b *BreakerSource) Timeseries(ctx context.Context, entityID string, platform domain.Platform, since time.Time) ([]domain.MetricSnapshot, error) {
	return execute(b, func() ([]domain.MetricSnapshot, error) {
		return b.next.Timeseries(ctx, entityID, platform, since)
	})
}
