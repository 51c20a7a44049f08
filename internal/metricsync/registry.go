package metricsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/worker"
)

// DefaultIdleTTL is how long an unused coordinator survives in the registry.
const DefaultIdleTTL = 30 * time.Minute

// RegistryConfig tunes a Registry.
type RegistryConfig struct {
	Coordinator Config
	IdleTTL     time.Duration
	// SweepInterval defaults to a quarter of IdleTTL.
	SweepInterval time.Duration
	// NewTicker drives the sweeper; nil uses a real ticker.
	NewTicker worker.TickerFactory
}

type registryEntry struct {
	coord    *Coordinator
	lastUsed time.Time
	pinned   bool
}

// Registry shares one coordinator per distinct Params across callers and stops
// coordinators nobody asked for within IdleTTL.
type Registry struct {
	source ports.MetricsRepository
	feed   ports.ChangeFeed
	cfg    RegistryConfig
	logger *zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*registryEntry
	closed  bool
}

// NewRegistry creates a registry. Coordinators started through it live under ctx.
func NewRegistry(ctx context.Context, source ports.MetricsRepository, feed ports.ChangeFeed, cfg RegistryConfig) *Registry {
	cfg.Coordinator = cfg.Coordinator.withDefaults()

	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.IdleTTL / 4
	}

	return &Registry{
		source:  source,
		feed:    feed,
		cfg:     cfg,
		logger:  cfg.Coordinator.Logger,
		ctx:     ctx,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the running coordinator for p, starting one on first use.
func (r *Registry) Get(p Params) (*Coordinator, error) {
	return r.get(p, false)
}

// Pin returns the coordinator for p and exempts it from idle eviction.
func (r *Registry) Pin(p Params) (*Coordinator, error) {
	return r.get(p, true)
}

func (r *Registry) get(p Params, pin bool) (*Coordinator, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := p.Key()
	now := r.cfg.Coordinator.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("registry closed: %w", coreerrors.ErrCoordinatorStopped)
	}

	if e, ok := r.entries[key]; ok {
		e.lastUsed = now
		e.pinned = e.pinned || pin

		return e.coord, nil
	}

	coord, err := NewCoordinator(r.source, r.feed, p, r.cfg.Coordinator)
	if err != nil {
		return nil, err
	}

	if err := coord.Start(r.ctx); err != nil {
		return nil, err
	}

	r.entries[key] = &registryEntry{coord: coord, lastUsed: now, pinned: pin}

	r.logger.Info().Str(logFieldEntity, p.EntityID).Str("key", key).Msg("sync coordinator started")

	return coord, nil
}

// Len returns the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Sweep stops coordinators idle for longer than IdleTTL and returns how many were stopped.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Coordinator.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()

	var idle []*Coordinator

	for key, e := range r.entries {
		if e.pinned || e.lastUsed.After(cutoff) {
			continue
		}

		idle = append(idle, e.coord)
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, coord := range idle {
		coord.Stop()
	}

	if len(idle) > 0 {
		r.logger.Info().Int("stopped", len(idle)).Msg("idle sync coordinators evicted")
	}

	return len(idle)
}

// Run sweeps idle coordinators until ctx is canceled, then stops all of them.
func (r *Registry) Run(ctx context.Context) error {
	defer r.Close()

	return worker.SingleTickerLoop(ctx, worker.SingleTickerConfig{
		Name:      "coordinator-sweeper",
		Interval:  r.cfg.SweepInterval,
		NewTicker: r.cfg.NewTicker,
		Logger:    r.logger,
		OnTick: func(context.Context) {
			defer worker.RecoverPanic(r.logger, "coordinator sweep")

			r.Sweep()
		},
	})
}

// Close stops every coordinator; later Get calls fail.
func (r *Registry) Close() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return
	}

	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var wg sync.WaitGroup

	for _, e := range entries {
		wg.Add(1)

		go func(c *Coordinator) {
			defer wg.Done()

			c.Stop()
		}(e.coord)
	}

	wg.Wait()
}
