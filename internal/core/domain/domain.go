package domain

import (
	"strings"
	"time"
)

// Platform identifies a DSP or social network a metric was captured from.
type Platform string

// Known platforms. Any other value is passed through untouched.
const (
	PlatformSpotify    Platform = "spotify"
	PlatformAppleMusic Platform = "apple_music"
	PlatformYouTube    Platform = "youtube"
	PlatformDeezer     Platform = "deezer"
	PlatformInstagram  Platform = "instagram"
	PlatformTikTok     Platform = "tiktok"
)

// ParsePlatforms splits a comma separated list, dropping blanks and duplicates
// while keeping the first-seen order.
func ParsePlatforms(s string) []Platform {
	parts := strings.Split(s, ",")
	seen := make(map[Platform]struct{}, len(parts))
	out := make([]Platform, 0, len(parts))

	for _, p := range parts {
		platform := Platform(strings.ToLower(strings.TrimSpace(p)))
		if platform == "" {
			continue
		}

		if _, ok := seen[platform]; ok {
			continue
		}

		seen[platform] = struct{}{}
		out = append(out, platform)
	}

	return out
}

// Dimension is one of the three metric families tracked per platform.
type Dimension string

const (
	DimensionFollowers        Dimension = "followers"
	DimensionMonthlyListeners Dimension = "monthly_listeners"
	DimensionStreams          Dimension = "streams"
)

// Valid reports whether d is one of the known dimensions.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionFollowers, DimensionMonthlyListeners, DimensionStreams:
		return true
	default:
		return false
	}
}

// DeltaWindow names the look-back of a delta view.
type DeltaWindow string

const (
	Window24h DeltaWindow = "24h"
	Window7d  DeltaWindow = "7d"
)

// MetricSnapshot is one timestamped observation for an (entity, platform) pair.
// Rows are immutable once written; nil fields were not captured.
type MetricSnapshot struct {
	EntityID         string    `json:"entity_id"`
	Platform         Platform  `json:"platform"`
	CapturedAt       time.Time `json:"captured_at"`
	FollowersTotal   *int64    `json:"followers_total,omitempty"`
	MonthlyListeners *int64    `json:"monthly_listeners,omitempty"`
	StreamsTotal     *int64    `json:"streams_total,omitempty"`
	RankInCountry    *int      `json:"rank_in_country,omitempty"`
	SourceURL        string    `json:"source_url,omitempty"`
}

// DeltaRow is one row of a precomputed delta view.
type DeltaRow struct {
	EntityID         string
	Platform         Platform
	Window           DeltaWindow
	Followers        *int64
	MonthlyListeners *int64
	Streams          *int64
}

// Delta holds signed differences against an earlier snapshot.
// A nil field means "no data yet"; zero is a real delta.
type Delta struct {
	Followers        *int64 `json:"followers,omitempty"`
	MonthlyListeners *int64 `json:"monthly_listeners,omitempty"`
	Streams          *int64 `json:"streams,omitempty"`
}

// MergedPlatformMetric is the denormalized view of one platform for one cycle.
// It is always replaced as a whole.
type MergedPlatformMetric struct {
	Platform   Platform         `json:"platform"`
	Latest     *MetricSnapshot  `json:"latest,omitempty"`
	Delta24h   *Delta           `json:"delta_24h,omitempty"`
	Delta7d    *Delta           `json:"delta_7d,omitempty"`
	Timeseries []MetricSnapshot `json:"timeseries"`
}

// Value returns the snapshot value for the given dimension.
func (s *MetricSnapshot) Value(d Dimension) *int64 {
	if s == nil {
		return nil
	}

	switch d {
	case DimensionFollowers:
		return s.FollowersTotal
	case DimensionMonthlyListeners:
		return s.MonthlyListeners
	case DimensionStreams:
		return s.StreamsTotal
	default:
		return nil
	}
}

// Value returns the delta for the given dimension.
func (d *Delta) Value(dim Dimension) *int64 {
	if d == nil {
		return nil
	}

	switch dim {
	case DimensionFollowers:
		return d.Followers
	case DimensionMonthlyListeners:
		return d.MonthlyListeners
	case DimensionStreams:
		return d.Streams
	default:
		return nil
	}
}

// ChangeEvent is a row-level notification from the store's change channel.
type ChangeEvent struct {
	Table      string    `json:"table"`
	EntityID   string    `json:"entity_id"`
	Platform   Platform  `json:"platform,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// ChangeFilter scopes a change subscription.
type ChangeFilter struct {
	Table    string
	EntityID string
}

// Matches reports whether ev falls inside the filter. Empty filter fields match anything.
func (f ChangeFilter) Matches(ev ChangeEvent) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}

	if f.EntityID != "" && f.EntityID != ev.EntityID {
		return false
	}

	return true
}
