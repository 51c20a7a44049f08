package metricsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
	"github.com/lueurxax/artist-pulse/internal/platform/worker"
)

// State is the lifecycle state of a coordinator.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateRefreshing State = "refreshing"
	StateError      State = "error"
)

// Trigger reasons, used as log fields and metric labels.
const (
	ReasonStart    = "start"
	ReasonInterval = "interval"
	ReasonChange   = "change"
	ReasonManual   = "manual"
	ReasonParams   = "params"
)

const (
	// DefaultInterval is the polling period when Config.Interval is unset.
	DefaultInterval = 15 * time.Minute
	// DefaultChangeTable is the raw ingestion table whose inserts invalidate metrics.
	DefaultChangeTable = "dsp_snapshots"

	resultDiscarded = "discarded"
	resultOK        = "ok"
	resultError     = "error"

	logFieldEntity  = "entity_id"
	logFieldTrigger = "trigger"
)

// Config tunes a coordinator. Zero values fall back to defaults.
type Config struct {
	Interval     time.Duration
	ChangeTable  string
	FetchTimeout time.Duration
	NewTicker    worker.TickerFactory
	Now          func() time.Time
	Logger       *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.ChangeTable == "" {
		c.ChangeTable = DefaultChangeTable
	}

	if c.NewTicker == nil {
		c.NewTicker = worker.NewRealTicker
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}

	return c
}

// Snapshot is an immutable copy of a coordinator's observable state.
type Snapshot struct {
	Params     Params                        `json:"params"`
	State      State                         `json:"state"`
	Metrics    []domain.MergedPlatformMetric `json:"metrics"`
	LastUpdate *time.Time                    `json:"last_update"`
	LastError  string                        `json:"last_error,omitempty"`
	Generation uint64                        `json:"generation"`
	Cycles     uint64                        `json:"cycles"`
}

type cycleResult struct {
	generation uint64
	metrics    []domain.MergedPlatformMetric
	freshness  *time.Time
	err        error
	duration   time.Duration
}

// Coordinator keeps the merged metrics of one (entity, platforms, days) subscription fresh.
// A single loop goroutine owns trigger handling; at most one cycle is in flight and
// triggers arriving meanwhile are coalesced. Results of a cycle started under older
// params, or after Stop, are discarded by generation.
type Coordinator struct {
	fetcher *Fetcher
	feed    ports.ChangeFeed
	cfg     Config
	logger  *zerolog.Logger

	mu         sync.Mutex
	params     Params
	state      State
	metrics    []domain.MergedPlatformMetric
	lastUpdate *time.Time
	lastErr    string
	generation uint64
	cycles     uint64
	inFlight   bool
	cycleGen   uint64
	started    bool
	stopped    bool
	dimensions map[domain.Platform]domain.Dimension
	listeners  map[int]chan Snapshot
	nextID     int
	committed  chan struct{}

	subMu          sync.Mutex
	unsubscribe    func()
	subscribedTo   string
	changeCh       chan struct{}
	manualCh       chan struct{}
	paramsCh       chan struct{}
	results        chan cycleResult
	cancel         context.CancelFunc
	loopDone       chan struct{}
	stopOnce       sync.Once
	coalescedCount map[string]int
}

// NewCoordinator creates an idle coordinator. feed may be nil, in which case only
// the interval, parameter changes and Refresh trigger cycles.
func NewCoordinator(source ports.MetricsRepository, feed ports.ChangeFeed, params Params, cfg Config) (*Coordinator, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	fetcher := NewFetcher(source)
	fetcher.now = cfg.Now

	return &Coordinator{
		fetcher:        fetcher,
		feed:           feed,
		cfg:            cfg,
		logger:         cfg.Logger,
		params:         params,
		state:          StateIdle,
		dimensions:     make(map[domain.Platform]domain.Dimension),
		listeners:      make(map[int]chan Snapshot),
		committed:      make(chan struct{}),
		changeCh:       make(chan struct{}, 1),
		manualCh:       make(chan struct{}, 1),
		paramsCh:       make(chan struct{}, 1),
		results:        make(chan cycleResult, 1),
		loopDone:       make(chan struct{}),
		coalescedCount: make(map[string]int),
	}, nil
}

// Start subscribes to the change feed and runs the first cycle. The coordinator
// runs until Stop is called or ctx is canceled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		return coreerrors.ErrCoordinatorStopped
	}

	if c.started {
		c.mu.Unlock()

		return coreerrors.ErrAlreadyStarted
	}

	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.resubscribe()

	observability.SyncActiveCoordinators.Inc()

	go c.loop(loopCtx)

	return nil
}

// Stop cancels the interval, releases the change subscription and waits for the loop.
// Nothing is delivered to subscribers afterwards. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		wasStarted := c.started
		c.stopped = true
		c.generation++

		for id, ch := range c.listeners {
			close(ch)
			delete(c.listeners, id)
		}
		c.mu.Unlock()

		c.releaseSubscription()

		if !wasStarted {
			return
		}

		c.cancel()
		<-c.loopDone

		observability.SyncActiveCoordinators.Dec()
	})
}

// SetParams replaces the subscription parameters. Unchanged params are a no-op.
// A change bumps the generation so an in-flight result is discarded, and exactly
// one follow-up cycle runs for the newest params.
func (c *Coordinator) SetParams(p Params) error {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		return coreerrors.ErrCoordinatorStopped
	}

	if p.Equal(c.params) {
		c.mu.Unlock()

		return nil
	}

	entityChanged := p.EntityID != c.params.EntityID
	c.params = p
	c.generation++

	if entityChanged {
		c.metrics = nil
		c.lastUpdate = nil
		c.lastErr = ""
		c.dimensions = make(map[domain.Platform]domain.Dimension)
	}

	started := c.started
	c.mu.Unlock()

	if !started {
		return nil
	}

	if entityChanged {
		c.resubscribe()
	}

	signal(c.paramsCh)

	return nil
}

// Params returns the current parameters.
func (c *Coordinator) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.params
}

// Refresh requests an immediate cycle; it is coalesced with one already in flight.
func (c *Coordinator) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || !c.started {
		return coreerrors.ErrCoordinatorStopped
	}

	signal(c.manualCh)

	return nil
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every committed cycle.
// Only the newest undelivered snapshot is kept. The returned func releases the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)

	if c.stopped {
		close(ch)

		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.listeners[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if l, ok := c.listeners[id]; ok {
			close(l)
			delete(c.listeners, id)
		}
	}
}

// AwaitCycle blocks until at least one cycle has committed, then returns the snapshot.
func (c *Coordinator) AwaitCycle(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	committed := c.committed
	c.mu.Unlock()

	select {
	case <-committed:
		return c.Snapshot(), nil
	case <-c.loopDone:
		return c.Snapshot(), coreerrors.ErrCoordinatorStopped
	case <-ctx.Done():
		return c.Snapshot(), fmt.Errorf("await cycle: %w", ctx.Err())
	}
}

// SetActiveDimension selects which dimension is displayed for a platform.
// It is view state only and never changes what is fetched.
func (c *Coordinator) SetActiveDimension(platform domain.Platform, dim domain.Dimension) error {
	if !dim.Valid() {
		return fmt.Errorf("dimension %q: %w", dim, coreerrors.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dimensions[platform] = dim

	return nil
}

// ActiveDimension returns the selected dimension for a platform, followers by default.
func (c *Coordinator) ActiveDimension(platform domain.Platform) domain.Dimension {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dim, ok := c.dimensions[platform]; ok {
		return dim
	}

	return domain.DimensionFollowers
}

// Coalesced returns how many triggers of the given reason were dropped.
func (c *Coordinator) Coalesced(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.coalescedCount[reason]
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.loopDone)

	ticker := c.cfg.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.startCycle(ctx, ReasonStart)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.trigger(ctx, ReasonInterval)
		case <-c.changeCh:
			c.trigger(ctx, ReasonChange)
		case <-c.manualCh:
			c.trigger(ctx, ReasonManual)
		case <-c.paramsCh:
			c.onParamsChanged(ctx)
		case res := <-c.results:
			c.commit(ctx, res)
		}
	}
}

func (c *Coordinator) trigger(ctx context.Context, reason string) {
	c.mu.Lock()

	if c.inFlight {
		c.coalescedCount[reason]++
		entityID := c.params.EntityID
		c.mu.Unlock()

		observability.SyncCoalesced.WithLabelValues(reason).Inc()
		c.logger.Debug().Str(logFieldEntity, entityID).Str(logFieldTrigger, reason).Msg("trigger coalesced")

		return
	}

	c.mu.Unlock()

	c.startCycle(ctx, reason)
}

// onParamsChanged starts a cycle for new params unless one already ran or runs for them.
// An in-flight cycle for older params is discarded on commit, which queues the follow-up.
func (c *Coordinator) onParamsChanged(ctx context.Context) {
	c.mu.Lock()

	if c.inFlight || c.cycleGen == c.generation {
		c.mu.Unlock()

		return
	}

	c.mu.Unlock()

	c.startCycle(ctx, ReasonParams)
}

func (c *Coordinator) startCycle(ctx context.Context, reason string) {
	c.mu.Lock()

	if c.stopped || c.inFlight {
		c.mu.Unlock()

		return
	}

	c.inFlight = true
	c.cycleGen = c.generation
	params := c.params
	generation := c.generation

	if len(c.metrics) == 0 {
		c.state = StateLoading
	} else {
		c.state = StateRefreshing
	}
	c.mu.Unlock()

	observability.SyncTriggers.WithLabelValues(reason).Inc()
	c.logger.Debug().
		Str(logFieldEntity, params.EntityID).
		Str(logFieldTrigger, reason).
		Uint64("generation", generation).
		Msg("sync cycle started")

	go c.runCycle(ctx, generation, params)
}

func (c *Coordinator) runCycle(ctx context.Context, generation uint64, params Params) {
	started := c.cfg.Now()

	views, err := c.fetch(ctx, params)

	res := cycleResult{
		generation: generation,
		err:        err,
		duration:   c.cfg.Now().Sub(started),
	}

	if err == nil {
		res.metrics = Merge(params.EntityID, params.Platforms, views)
		res.freshness = Freshness(views.Latest)
	}

	select {
	case c.results <- res:
	case <-ctx.Done():
	}
}

func (c *Coordinator) fetch(ctx context.Context, params Params) (views Views, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metric fetch panic: %v", r)
		}
	}()

	err = worker.RunWithTimeout(ctx, c.cfg.FetchTimeout, func(fetchCtx context.Context) error {
		var fetchErr error

		views, fetchErr = c.fetcher.Fetch(fetchCtx, params)

		return fetchErr
	})

	return views, err
}

func (c *Coordinator) commit(ctx context.Context, res cycleResult) {
	c.mu.Lock()

	c.inFlight = false
	followUp := false

	switch {
	case res.generation != c.generation || c.stopped:
		observability.SyncCycles.WithLabelValues(resultDiscarded).Inc()
		c.logger.Debug().Str(logFieldEntity, c.params.EntityID).Uint64("generation", res.generation).Msg("stale sync result discarded")

		followUp = !c.stopped
	case res.err != nil:
		c.state = StateError
		c.lastErr = res.err.Error()
		c.markCommittedLocked()

		observability.SyncCycles.WithLabelValues(resultError).Inc()
		c.logger.Warn().Err(res.err).Str(logFieldEntity, c.params.EntityID).Msg("sync cycle failed, keeping previous metrics")
	default:
		c.metrics = res.metrics
		c.lastUpdate = res.freshness
		c.lastErr = ""
		c.state = StateReady
		c.markCommittedLocked()

		observability.SyncCycles.WithLabelValues(resultOK).Inc()
		observability.SyncCycleDurationSeconds.Observe(res.duration.Seconds())

		if res.freshness != nil {
			observability.SyncFreshnessAgeSeconds.Observe(c.cfg.Now().Sub(*res.freshness).Seconds())
		}
	}
	c.mu.Unlock()

	if followUp {
		c.startCycle(ctx, ReasonParams)
	}
}

// markCommittedLocked records a committed cycle and notifies waiters and listeners.
func (c *Coordinator) markCommittedLocked() {
	c.cycles++

	if c.cycles == 1 {
		close(c.committed)
	}

	snap := c.snapshotLocked()

	for _, ch := range c.listeners {
		select {
		case <-ch:
		default:
		}

		ch <- snap
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Params:     c.params,
		State:      c.state,
		LastError:  c.lastErr,
		Generation: c.generation,
		Cycles:     c.cycles,
	}

	if c.metrics != nil {
		snap.Metrics = make([]domain.MergedPlatformMetric, len(c.metrics))
		copy(snap.Metrics, c.metrics)
	}

	if c.lastUpdate != nil {
		t := *c.lastUpdate
		snap.LastUpdate = &t
	}

	snap.Params.Platforms = append([]domain.Platform(nil), c.params.Platforms...)

	return snap
}

// resubscribe points the change subscription at the current entity; after Stop
// it does nothing.
func (c *Coordinator) resubscribe() {
	if c.feed == nil {
		return
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	stopped := c.stopped
	entityID := c.params.EntityID
	c.mu.Unlock()

	if stopped {
		return
	}

	if c.unsubscribe != nil {
		if c.subscribedTo == entityID {
			return
		}

		c.unsubscribe()
		c.unsubscribe = nil
	}

	filter := domain.ChangeFilter{Table: c.cfg.ChangeTable, EntityID: entityID}

	unsubscribe, err := c.feed.Subscribe(filter, func(domain.ChangeEvent) {
		signal(c.changeCh)
	})
	if err != nil {
		c.logger.Warn().Err(err).Str(logFieldEntity, entityID).Msg("change subscription failed, relying on polling")

		return
	}

	c.unsubscribe = unsubscribe
	c.subscribedTo = entityID
}

func (c *Coordinator) releaseSubscription() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
		c.subscribedTo = ""
	}
}

// signal performs a non-blocking send on a buffered-1 trigger channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
