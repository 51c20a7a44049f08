package preferences

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/worker"
)

// DefaultIdleTTL is how long an unused store stays cached.
const DefaultIdleTTL = 30 * time.Minute

// RegistryConfig tunes a Registry. Zero values fall back to defaults.
type RegistryConfig struct {
	IdleTTL time.Duration
	// SweepInterval defaults to a quarter of IdleTTL.
	SweepInterval time.Duration
	NewTicker     worker.TickerFactory
	Now           func() time.Time
}

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

// Registry caches one Store per (user, entity) and drops stores nobody used
// within IdleTTL.
type Registry struct {
	repo   ports.PreferenceRepository
	cfg    RegistryConfig
	logger *zerolog.Logger
	loads  singleflight.Group

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry(repo ports.PreferenceRepository, cfg RegistryConfig, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.IdleTTL / 4
	}

	if cfg.NewTicker == nil {
		cfg.NewTicker = worker.NewRealTicker
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Registry{repo: repo, cfg: cfg, logger: logger, entries: make(map[string]*registryEntry)}
}

// Get returns the cached store, loading it from the repository on first use.
// Ids are normalized first, so spellings of one (user, entity) share a store.
// Concurrent first uses of one key share a single load; a failed load is not cached.
func (r *Registry) Get(ctx context.Context, userID, entityID string) (*Store, error) {
	userID, entityID, err := normalizeIDs(userID, entityID)
	if err != nil {
		return nil, err
	}

	key := userID + "/" + entityID

	if s := r.lookup(key); s != nil {
		return s, nil
	}

	v, err, _ := r.loads.Do(key, func() (any, error) {
		if s := r.lookup(key); s != nil {
			return s, nil
		}

		s, err := NewStore(r.repo, userID, entityID, r.logger)
		if err != nil {
			return nil, err
		}

		if err := s.Reload(ctx); err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.entries[key] = &registryEntry{store: s, lastUsed: r.cfg.Now()}
		r.mu.Unlock()

		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Store), nil
}

func (r *Registry) lookup(key string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil
	}

	e.lastUsed = r.cfg.Now()

	return e.store
}

// Len returns the number of cached stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Sweep drops stores idle for longer than IdleTTL, waits for their pending
// writes and returns how many were dropped.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()

	var idle []*Store

	for key, e := range r.entries {
		if e.lastUsed.After(cutoff) {
			continue
		}

		idle = append(idle, e.store)
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Wait()
	}

	if len(idle) > 0 {
		r.logger.Debug().Int("dropped", len(idle)).Msg("idle preference stores evicted")
	}

	return len(idle)
}

// Run sweeps idle stores until ctx is canceled.
func (r *Registry) Run(ctx context.Context) error {
	return worker.SingleTickerLoop(ctx, worker.SingleTickerConfig{
		Name:      "preference-sweeper",
		Interval:  r.cfg.SweepInterval,
		NewTicker: r.cfg.NewTicker,
		Logger:    r.logger,
		OnTick: func(context.Context) {
			defer worker.RecoverPanic(r.logger, "preference sweep")

			r.Sweep()
		},
	})
}

// Wait blocks until every cached store has flushed its writes.
func (r *Registry) Wait() {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.entries))

	for _, e := range r.entries {
		stores = append(stores, e.store)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Wait()
	}
}
