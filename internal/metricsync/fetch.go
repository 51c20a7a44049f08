package metricsync

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
)

const (
	// DefaultDays is the timeseries range used when Params.Days is unset.
	DefaultDays = 30
	// MaxDays bounds the timeseries range.
	MaxDays = 365
)

// Params identifies what a coordinator keeps fresh.
type Params struct {
	EntityID  string            `json:"entity_id"`
	Platforms []domain.Platform `json:"platforms"`
	Days      int               `json:"days"`
}

// Normalize trims the entity, de-duplicates platforms and clamps Days.
func (p Params) Normalize() Params {
	out := Params{
		EntityID: strings.TrimSpace(p.EntityID),
		Days:     p.Days,
	}

	seen := make(map[domain.Platform]struct{}, len(p.Platforms))

	for _, platform := range p.Platforms {
		if platform == "" {
			continue
		}

		if _, ok := seen[platform]; ok {
			continue
		}

		seen[platform] = struct{}{}
		out.Platforms = append(out.Platforms, platform)
	}

	switch {
	case out.Days <= 0:
		out.Days = DefaultDays
	case out.Days > MaxDays:
		out.Days = MaxDays
	}

	return out
}

// Validate reports whether the params can drive a sync cycle.
func (p Params) Validate() error {
	if p.EntityID == "" {
		return fmt.Errorf("entity id: %w", coreerrors.ErrInvalidInput)
	}

	if len(p.Platforms) == 0 {
		return coreerrors.ErrNoPlatforms
	}

	return nil
}

// Equal compares params including platform order.
func (p Params) Equal(o Params) bool {
	return p.EntityID == o.EntityID && p.Days == o.Days && slices.Equal(p.Platforms, o.Platforms)
}

// Key is an order-insensitive identity used by the registry.
func (p Params) Key() string {
	platforms := make([]string, len(p.Platforms))
	for i, pl := range p.Platforms {
		platforms[i] = string(pl)
	}

	slices.Sort(platforms)

	return p.EntityID + "|" + strings.Join(platforms, ",") + "|" + strconv.Itoa(p.Days)
}

// Fetcher issues the independent fetches of one sync cycle concurrently.
type Fetcher struct {
	repo ports.MetricsRepository
	now  func() time.Time
}

// NewFetcher creates a fetcher over repo.
func NewFetcher(repo ports.MetricsRepository) *Fetcher {
	return &Fetcher{repo: repo, now: time.Now}
}

// Fetch loads the latest, 24h and 7d views plus one timeseries per platform.
// The first failure cancels the remaining fetches and is returned.
func (f *Fetcher) Fetch(ctx context.Context, p Params) (Views, error) {
	var (
		views Views
		mu    sync.Mutex
	)

	views.Timeseries = make(map[domain.Platform][]domain.MetricSnapshot, len(p.Platforms))
	since := f.now().Add(-time.Duration(p.Days) * 24 * time.Hour)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := f.repo.LatestSnapshots(gctx, p.EntityID, p.Platforms)
		if err != nil {
			return fmt.Errorf("fetch latest: %w", err)
		}

		views.Latest = rows

		return nil
	})

	g.Go(func() error {
		rows, err := f.repo.Deltas(gctx, p.EntityID, p.Platforms, domain.Window24h)
		if err != nil {
			return fmt.Errorf("fetch delta 24h: %w", err)
		}

		views.Delta24h = rows

		return nil
	})

	g.Go(func() error {
		rows, err := f.repo.Deltas(gctx, p.EntityID, p.Platforms, domain.Window7d)
		if err != nil {
			return fmt.Errorf("fetch delta 7d: %w", err)
		}

		views.Delta7d = rows

		return nil
	})

	for _, platform := range p.Platforms {
		g.Go(func() error {
			rows, err := f.repo.Timeseries(gctx, p.EntityID, platform, since)
			if err != nil {
				return fmt.Errorf("fetch timeseries %s: %w", platform, err)
			}

			mu.Lock()
			views.Timeseries[platform] = rows
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Views{}, err
	}

	return views, nil
}
