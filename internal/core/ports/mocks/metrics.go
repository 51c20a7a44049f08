package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

// MetricsRepository is a thread-safe in-memory implementation of ports.MetricsRepository.
// Rows are returned as set, without entity or platform filtering.
type MetricsRepository struct {
	mu     sync.RWMutex
	latest []domain.MetricSnapshot
	deltas map[domain.DeltaWindow][]domain.DeltaRow
	series map[domain.Platform][]domain.MetricSnapshot

	// LatestFn allows overriding LatestSnapshots behavior.
	LatestFn func(ctx context.Context, entityID string, platforms []domain.Platform) ([]domain.MetricSnapshot, error)

	// DeltasFn allows overriding Deltas behavior.
	DeltasFn func(ctx context.Context, entityID string, platforms []domain.Platform, window domain.DeltaWindow) ([]domain.DeltaRow, error)

	// TimeseriesFn allows overriding Timeseries behavior.
	TimeseriesFn func(ctx context.Context, entityID string, platform domain.Platform, since time.Time) ([]domain.MetricSnapshot, error)

	latestCalls     atomic.Int64
	deltaCalls      atomic.Int64
	timeseriesCalls atomic.Int64
}

// NewMetricsRepository creates an empty mock metrics repository.
func NewMetricsRepository() *MetricsRepository {
	return &MetricsRepository{
		deltas: make(map[domain.DeltaWindow][]domain.DeltaRow),
		series: make(map[domain.Platform][]domain.MetricSnapshot),
	}
}

// SetLatest replaces the latest snapshot rows.
func (m *MetricsRepository) SetLatest(rows ...domain.MetricSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = append([]domain.MetricSnapshot(nil), rows...)
}

// SetDeltas replaces the delta rows of one window.
func (m *MetricsRepository) SetDeltas(window domain.DeltaWindow, rows ...domain.DeltaRow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deltas[window] = append([]domain.DeltaRow(nil), rows...)
}

// SetTimeseries replaces the timeseries of one platform.
func (m *MetricsRepository) SetTimeseries(platform domain.Platform, rows ...domain.MetricSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.series[platform] = append([]domain.MetricSnapshot(nil), rows...)
}

// LatestSnapshots returns the configured latest rows.
func (m *MetricsRepository) LatestSnapshots(ctx context.Context, entityID string, platforms []domain.Platform) ([]domain.MetricSnapshot, error) {
	m.latestCalls.Add(1)

	if m.LatestFn != nil {
		return m.LatestFn(ctx, entityID, platforms)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]domain.MetricSnapshot(nil), m.latest...), nil
}

// Deltas returns the configured delta rows for window.
func (m *MetricsRepository) Deltas(ctx context.Context, entityID string, platforms []domain.Platform, window domain.DeltaWindow) ([]domain.DeltaRow, error) {
	m.deltaCalls.Add(1)

	if m.DeltasFn != nil {
		return m.DeltasFn(ctx, entityID, platforms, window)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]domain.DeltaRow(nil), m.deltas[window]...), nil
}

// Timeseries returns the configured timeseries for platform.
func (m *MetricsRepository) Timeseries(ctx context.Context, entityID string, platform domain.Platform, since time.Time) ([]domain.MetricSnapshot, error) {
	m.timeseriesCalls.Add(1)

	if m.TimeseriesFn != nil {
		return m.TimeseriesFn(ctx, entityID, platform, since)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]domain.MetricSnapshot(nil), m.series[platform]...), nil
}

// LatestCalls returns how many times LatestSnapshots was called.
func (m *MetricsRepository) LatestCalls() int64 {
	return m.latestCalls.Load()
}

// DeltaCalls returns how many times Deltas was called.
func (m *MetricsRepository) DeltaCalls() int64 {
	return m.deltaCalls.Load()
}

// TimeseriesCalls returns how many times Timeseries was called.
func (m *MetricsRepository) TimeseriesCalls() int64 {
	return m.timeseriesCalls.Load()
}
