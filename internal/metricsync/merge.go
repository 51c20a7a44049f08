package metricsync

import (
	"sort"
	"time"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

// Views is the raw material of one sync cycle.
type Views struct {
	Latest     []domain.MetricSnapshot
	Delta24h   []domain.DeltaRow
	Delta7d    []domain.DeltaRow
	Timeseries map[domain.Platform][]domain.MetricSnapshot
}

// Merge joins the three views on (entity, platform) and returns exactly one record
// per requested platform, in request order. Rows for other entities or platforms are
// ignored. Missing rows leave the corresponding field nil.
func Merge(entityID string, platforms []domain.Platform, v Views) []domain.MergedPlatformMetric {
	latest := latestByPlatform(entityID, v.Latest)
	d24 := deltasByPlatform(entityID, v.Delta24h)
	d7 := deltasByPlatform(entityID, v.Delta7d)

	seen := make(map[domain.Platform]struct{}, len(platforms))
	out := make([]domain.MergedPlatformMetric, 0, len(platforms))

	for _, p := range platforms {
		if _, dup := seen[p]; dup {
			continue
		}

		seen[p] = struct{}{}

		out = append(out, domain.MergedPlatformMetric{
			Platform:   p,
			Latest:     latest[p],
			Delta24h:   d24[p],
			Delta7d:    d7[p],
			Timeseries: timeseriesFor(entityID, v.Timeseries[p]),
		})
	}

	return out
}

// Freshness returns the newest captured_at across latest, or nil when latest is empty.
func Freshness(latest []domain.MetricSnapshot) *time.Time {
	var newest *time.Time

	for i := range latest {
		at := latest[i].CapturedAt
		if newest == nil || at.After(*newest) {
			t := at
			newest = &t
		}
	}

	return newest
}

func belongs(entityID, rowEntity string) bool {
	return rowEntity == "" || rowEntity == entityID
}

// latestByPlatform keeps the newest row per platform so the merge does not depend on row order.
func latestByPlatform(entityID string, rows []domain.MetricSnapshot) map[domain.Platform]*domain.MetricSnapshot {
	out := make(map[domain.Platform]*domain.MetricSnapshot, len(rows))

	for i := range rows {
		row := rows[i]
		if !belongs(entityID, row.EntityID) {
			continue
		}

		if cur, ok := out[row.Platform]; ok && !row.CapturedAt.After(cur.CapturedAt) {
			continue
		}

		out[row.Platform] = &row
	}

	return out
}

// deltasByPlatform folds duplicate rows for a platform field by field: a present
// value beats a missing one and the larger of two present values wins, so the
// result does not depend on row order.
func deltasByPlatform(entityID string, rows []domain.DeltaRow) map[domain.Platform]*domain.Delta {
	out := make(map[domain.Platform]*domain.Delta, len(rows))

	for _, row := range rows {
		if !belongs(entityID, row.EntityID) {
			continue
		}

		d, ok := out[row.Platform]
		if !ok {
			d = &domain.Delta{}
			out[row.Platform] = d
		}

		d.Followers = maxOf(d.Followers, row.Followers)
		d.MonthlyListeners = maxOf(d.MonthlyListeners, row.MonthlyListeners)
		d.Streams = maxOf(d.Streams, row.Streams)
	}

	return out
}

func maxOf(cur, next *int64) *int64 {
	if next == nil || (cur != nil && *cur >= *next) {
		return cur
	}

	v := *next

	return &v
}

func timeseriesFor(entityID string, rows []domain.MetricSnapshot) []domain.MetricSnapshot {
	out := make([]domain.MetricSnapshot, 0, len(rows))

	for _, row := range rows {
		if belongs(entityID, row.EntityID) {
			out = append(out, row)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })

	return out
}
