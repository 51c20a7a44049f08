package metricsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports/mocks"
)

func TestParams_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{
			name: "defaults days and trims entity",
			in:   Params{EntityID: "  ent ", Platforms: []domain.Platform{"spotify"}},
			want: Params{EntityID: "ent", Platforms: []domain.Platform{"spotify"}, Days: DefaultDays},
		},
		{
			name: "drops blank and duplicate platforms",
			in:   Params{EntityID: "ent", Platforms: []domain.Platform{"spotify", "", "youtube", "spotify"}, Days: 7},
			want: Params{EntityID: "ent", Platforms: []domain.Platform{"spotify", "youtube"}, Days: 7},
		},
		{
			name: "clamps days",
			in:   Params{EntityID: "ent", Platforms: []domain.Platform{"spotify"}, Days: 5000},
			want: Params{EntityID: "ent", Platforms: []domain.Platform{"spotify"}, Days: MaxDays},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestParams_KeyIgnoresPlatformOrder(t *testing.T) {
	a := Params{EntityID: "ent", Platforms: []domain.Platform{"spotify", "youtube"}, Days: 30}
	b := Params{EntityID: "ent", Platforms: []domain.Platform{"youtube", "spotify"}, Days: 30}

	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), Params{EntityID: "ent", Platforms: a.Platforms, Days: 7}.Key())
}

func TestFetcher_FetchesEveryView(t *testing.T) {
	now := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)

	repo := mocks.NewMetricsRepository()
	repo.SetLatest(domain.MetricSnapshot{EntityID: "ent", Platform: domain.PlatformSpotify, CapturedAt: now})
	repo.SetDeltas(domain.Window24h, domain.DeltaRow{EntityID: "ent", Platform: domain.PlatformSpotify, Followers: i64(1)})
	repo.SetDeltas(domain.Window7d, domain.DeltaRow{EntityID: "ent", Platform: domain.PlatformSpotify, Followers: i64(7)})

	var since []time.Time

	repo.TimeseriesFn = func(_ context.Context, _ string, platform domain.Platform, from time.Time) ([]domain.MetricSnapshot, error) {
		since = append(since, from)

		return []domain.MetricSnapshot{{EntityID: "ent", Platform: platform, CapturedAt: from}}, nil
	}

	f := NewFetcher(repo)
	f.now = func() time.Time { return now }

	views, err := f.Fetch(context.Background(), Params{EntityID: "ent", Platforms: []domain.Platform{"spotify"}, Days: 7})
	require.NoError(t, err)

	assert.Len(t, views.Latest, 1)
	assert.Len(t, views.Delta24h, 1)
	assert.Len(t, views.Delta7d, 1)
	require.Len(t, views.Timeseries[domain.PlatformSpotify], 1)
	require.Len(t, since, 1)
	assert.Equal(t, now.Add(-7*24*time.Hour), since[0])
}

func TestFetcher_FirstErrorWins(t *testing.T) {
	repo := mocks.NewMetricsRepository()
	repo.DeltasFn = func(context.Context, string, []domain.Platform, domain.DeltaWindow) ([]domain.DeltaRow, error) {
		return nil, mocks.ErrInjected
	}

	_, err := NewFetcher(repo).Fetch(context.Background(), Params{EntityID: "ent", Platforms: []domain.Platform{"spotify"}, Days: 1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, mocks.ErrInjected))
	assert.Contains(t, err.Error(), "fetch delta")
}

func TestBreakerSource_OpensAfterFailures(t *testing.T) {
	repo := mocks.NewMetricsRepository()
	repo.LatestFn = func(context.Context, string, []domain.Platform) ([]domain.MetricSnapshot, error) {
		return nil, mocks.ErrInjected
	}

	cfg := DefaultBreakerConfig()
	cfg.Name = "test-breaker"
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5

	src := NewBreakerSource(repo, cfg, nil)
	require.NoError(t, src.Ready(context.Background()))

	for range 2 {
		_, err := src.LatestSnapshots(context.Background(), "ent", nil)
		require.ErrorIs(t, err, mocks.ErrInjected)
	}

	assert.Equal(t, "open", src.State())
	require.ErrorIs(t, src.Ready(context.Background()), coreerrors.ErrCircuitBreakerOpen)

	_, err := src.LatestSnapshots(context.Background(), "ent", nil)
	require.ErrorIs(t, err, coreerrors.ErrCircuitBreakerOpen)
	assert.Equal(t, int64(2), repo.LatestCalls())
}

func TestBreakerSource_CanceledIsNotAFailure(t *testing.T) {
	repo := mocks.NewMetricsRepository()
	repo.TimeseriesFn = func(ctx context.Context, _ string, _ domain.Platform, _ time.Time) ([]domain.MetricSnapshot, error) {
		return nil, ctx.Err()
	}

	cfg := DefaultBreakerConfig()
	cfg.Name = "test-breaker-cancel"
	cfg.MinRequests = 1
	cfg.FailureRatio = 0.1

	src := NewBreakerSource(repo, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 3 {
		_, err := src.Timeseries(ctx, "ent", domain.PlatformSpotify, time.Time{})
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, "closed", src.State())
}
