package metricsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports/mocks"
	"github.com/lueurxax/artist-pulse/internal/platform/worker"
)

const (
	waitFor = 2 * time.Second
	tickFor = 5 * time.Millisecond
)

// controlledRepo serves one latest row per requested entity and can hold fetches
// until released or fail them on demand.
type controlledRepo struct {
	*mocks.MetricsRepository

	block   atomic.Bool
	fail    atomic.Bool
	entered chan string
	release chan struct{}
}

func newControlledRepo() *controlledRepo {
	r := &controlledRepo{
		MetricsRepository: mocks.NewMetricsRepository(),
		entered:           make(chan string, 16),
		release:           make(chan struct{}),
	}

	r.LatestFn = func(ctx context.Context, entityID string, _ []domain.Platform) ([]domain.MetricSnapshot, error) {
		if r.block.Load() {
			r.entered <- entityID

			select {
			case <-r.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if r.fail.Load() {
			return nil, mocks.ErrInjected
		}

		followers := int64(len(entityID)) * 100

		return []domain.MetricSnapshot{
			{EntityID: entityID, Platform: domain.PlatformSpotify, CapturedAt: baseTime, FollowersTotal: &followers},
		}, nil
	}

	return r
}

type harness struct {
	repo   *controlledRepo
	feed   *mocks.ChangeFeed
	ticker *worker.ManualTicker
	coord  *Coordinator
}

func newHarness(t *testing.T, entityID string) *harness {
	t.Helper()

	h := &harness{
		repo:   newControlledRepo(),
		feed:   mocks.NewChangeFeed(),
		ticker: worker.NewManualTicker(),
	}

	coord, err := NewCoordinator(h.repo, h.feed, Params{
		EntityID:  entityID,
		Platforms: []domain.Platform{domain.PlatformSpotify},
	}, Config{NewTicker: h.ticker.Factory()})
	require.NoError(t, err)

	h.coord = coord
	t.Cleanup(coord.Stop)

	return h
}

func (h *harness) waitCycles(t *testing.T, n uint64) Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		return h.coord.Snapshot().Cycles >= n
	}, waitFor, tickFor)

	return h.coord.Snapshot()
}

func TestNewCoordinator_RejectsInvalidParams(t *testing.T) {
	_, err := NewCoordinator(mocks.NewMetricsRepository(), nil, Params{EntityID: "x"}, Config{})
	require.ErrorIs(t, err, coreerrors.ErrNoPlatforms)

	_, err = NewCoordinator(mocks.NewMetricsRepository(), nil, Params{Platforms: []domain.Platform{"spotify"}}, Config{})
	require.ErrorIs(t, err, coreerrors.ErrInvalidInput)
}

func TestCoordinator_FirstCycleBecomesReady(t *testing.T) {
	h := newHarness(t, testEntity)

	assert.Equal(t, StateIdle, h.coord.Snapshot().State)

	require.NoError(t, h.coord.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	snap, err := h.coord.AwaitCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateReady, snap.State)
	require.Len(t, snap.Metrics, 1)
	require.NotNil(t, snap.Metrics[0].Latest)
	assert.Equal(t, int64(500), *snap.Metrics[0].Latest.FollowersTotal)
	require.NotNil(t, snap.LastUpdate)
	assert.True(t, baseTime.Equal(*snap.LastUpdate))
	assert.Empty(t, snap.LastError)

	assert.ErrorIs(t, h.coord.Start(context.Background()), coreerrors.ErrAlreadyStarted)
}

func TestCoordinator_OneRefreshPerIntervalTick(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	h.waitCycles(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	for i := 2; i <= 4; i++ {
		require.True(t, h.ticker.Tick(ctx))
		h.waitCycles(t, uint64(i))
		assert.Equal(t, int64(i), h.repo.LatestCalls())
	}

	assert.Equal(t, int64(4*2), h.repo.DeltaCalls())
	assert.Equal(t, int64(4), h.repo.TimeseriesCalls())
}

func TestCoordinator_TriggersDuringCycleAreCoalesced(t *testing.T) {
	h := newHarness(t, testEntity)
	h.repo.block.Store(true)

	require.NoError(t, h.coord.Start(context.Background()))
	<-h.repo.entered

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	require.NoError(t, h.coord.Refresh())
	require.True(t, h.ticker.Tick(ctx))
	require.NoError(t, h.feed.Emit(domain.ChangeEvent{Table: DefaultChangeTable, EntityID: testEntity}))

	require.Eventually(t, func() bool {
		return h.coord.Coalesced(ReasonManual) == 1 &&
			h.coord.Coalesced(ReasonInterval) == 1 &&
			h.coord.Coalesced(ReasonChange) == 1
	}, waitFor, tickFor)

	assert.Equal(t, StateLoading, h.coord.Snapshot().State)

	h.repo.block.Store(false)
	close(h.repo.release)

	h.waitCycles(t, 1)

	assert.Never(t, func() bool {
		return h.repo.LatestCalls() > 1
	}, 100*time.Millisecond, tickFor)
}

func TestCoordinator_ChangeEventTriggersRefresh(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	h.waitCycles(t, 1)

	filters := h.feed.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, domain.ChangeFilter{Table: DefaultChangeTable, EntityID: testEntity}, filters[0])

	require.ErrorIs(t, h.feed.Emit(domain.ChangeEvent{Table: DefaultChangeTable, EntityID: "someone-else"}), mocks.ErrUnsubscribed)
	require.NoError(t, h.feed.Emit(domain.ChangeEvent{Table: DefaultChangeTable, EntityID: testEntity, Platform: domain.PlatformSpotify}))

	h.waitCycles(t, 2)
	assert.Equal(t, int64(2), h.repo.LatestCalls())
}

func TestCoordinator_ErrorKeepsPreviousMetrics(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	first := h.waitCycles(t, 1)

	h.repo.fail.Store(true)
	require.NoError(t, h.coord.Refresh())

	failed := h.waitCycles(t, 2)
	assert.Equal(t, StateError, failed.State)
	assert.Contains(t, failed.LastError, mocks.ErrInjected.Error())
	assert.Equal(t, first.Metrics, failed.Metrics)
	assert.Equal(t, first.LastUpdate, failed.LastUpdate)

	h.repo.fail.Store(false)
	require.NoError(t, h.coord.Refresh())

	recovered := h.waitCycles(t, 3)
	assert.Equal(t, StateReady, recovered.State)
	assert.Empty(t, recovered.LastError)
}

func TestCoordinator_ParamsChangeDiscardsStaleResult(t *testing.T) {
	h := newHarness(t, "entity-a")
	h.repo.block.Store(true)

	updates, release := h.coord.Subscribe()
	defer release()

	require.NoError(t, h.coord.Start(context.Background()))
	assert.Equal(t, "entity-a", <-h.repo.entered)

	require.NoError(t, h.coord.SetParams(Params{
		EntityID:  "entity-bb",
		Platforms: []domain.Platform{domain.PlatformSpotify},
	}))

	h.repo.block.Store(false)
	close(h.repo.release)

	snap := h.waitCycles(t, 1)
	assert.Equal(t, "entity-bb", snap.Params.EntityID)
	assert.Equal(t, StateReady, snap.State)
	require.Len(t, snap.Metrics, 1)
	require.NotNil(t, snap.Metrics[0].Latest)
	assert.Equal(t, "entity-bb", snap.Metrics[0].Latest.EntityID)
	assert.Equal(t, int64(900), *snap.Metrics[0].Latest.FollowersTotal)

	select {
	case got := <-updates:
		assert.Equal(t, "entity-bb", got.Params.EntityID)
	case <-time.After(waitFor):
		t.Fatal("no snapshot delivered")
	}

	assert.Never(t, func() bool {
		return h.repo.LatestCalls() > 2
	}, 100*time.Millisecond, tickFor)

	filters := h.feed.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, "entity-bb", filters[0].EntityID)
}

func TestCoordinator_SetParamsUnchangedIsNoop(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	before := h.waitCycles(t, 1)

	require.NoError(t, h.coord.SetParams(Params{
		EntityID:  " " + testEntity + " ",
		Platforms: []domain.Platform{domain.PlatformSpotify, domain.PlatformSpotify},
	}))

	assert.Never(t, func() bool {
		return h.repo.LatestCalls() > 1
	}, 100*time.Millisecond, tickFor)
	assert.Equal(t, before.Generation, h.coord.Snapshot().Generation)
}

func TestCoordinator_StopDeliversNothing(t *testing.T) {
	h := newHarness(t, testEntity)
	h.repo.block.Store(true)

	updates, _ := h.coord.Subscribe()

	require.NoError(t, h.coord.Start(context.Background()))
	<-h.repo.entered

	h.coord.Stop()

	_, open := <-updates
	assert.False(t, open)
	assert.Equal(t, 0, h.feed.Active())
	assert.ErrorIs(t, h.coord.Refresh(), coreerrors.ErrCoordinatorStopped)
	assert.ErrorIs(t, h.coord.SetParams(Params{EntityID: "x", Platforms: []domain.Platform{"spotify"}}), coreerrors.ErrCoordinatorStopped)
	assert.Equal(t, uint64(0), h.coord.Snapshot().Cycles)

	late, _ := h.coord.Subscribe()
	_, open = <-late
	assert.False(t, open)

	h.coord.Stop()
}

func TestCoordinator_ActiveDimensionIsViewOnly(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	h.waitCycles(t, 1)

	assert.Equal(t, domain.DimensionFollowers, h.coord.ActiveDimension(domain.PlatformSpotify))

	require.NoError(t, h.coord.SetActiveDimension(domain.PlatformSpotify, domain.DimensionStreams))
	assert.Equal(t, domain.DimensionStreams, h.coord.ActiveDimension(domain.PlatformSpotify))
	assert.Equal(t, domain.DimensionFollowers, h.coord.ActiveDimension(domain.PlatformYouTube))

	require.ErrorIs(t, h.coord.SetActiveDimension(domain.PlatformSpotify, "likes"), coreerrors.ErrInvalidInput)

	assert.Never(t, func() bool {
		return h.repo.LatestCalls() > 1
	}, 50*time.Millisecond, tickFor)
}

func TestCoordinator_FetchTimeoutIsTransient(t *testing.T) {
	repo := newControlledRepo()
	repo.block.Store(true)

	coord, err := NewCoordinator(repo, nil, Params{
		EntityID:  testEntity,
		Platforms: []domain.Platform{domain.PlatformSpotify},
	}, Config{FetchTimeout: 20 * time.Millisecond, NewTicker: worker.NewManualTicker().Factory()})
	require.NoError(t, err)
	t.Cleanup(coord.Stop)

	require.NoError(t, coord.Start(context.Background()))

	require.Eventually(t, func() bool {
		return coord.Snapshot().State == StateError
	}, waitFor, tickFor)
	assert.Contains(t, coord.Snapshot().LastError, context.DeadlineExceeded.Error())
}

func TestCoordinator_ResubscribeAfterStopIsNoop(t *testing.T) {
	h := newHarness(t, testEntity)
	require.NoError(t, h.coord.Start(context.Background()))
	require.Equal(t, 1, h.feed.Active())

	h.coord.Stop()
	require.Equal(t, 0, h.feed.Active())

	// A SetParams that passed its stopped check before Stop resubscribes late.
	h.coord.resubscribe()

	assert.Equal(t, 0, h.feed.Active())
}
