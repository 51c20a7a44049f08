// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

// MetricsRepository reads the per-platform metric views.
type MetricsRepository interface {
	LatestSnapshots(ctx context.Context, entityID string, platforms []domain.Platform) ([]domain.MetricSnapshot, error)
	Deltas(ctx context.Context, entityID string, platforms []domain.Platform, window domain.DeltaWindow) ([]domain.DeltaRow, error)
	Timeseries(ctx context.Context, entityID string, platform domain.Platform, since time.Time) ([]domain.MetricSnapshot, error)
}

// ChangeFeed delivers row-level change notifications.
// The returned function releases the subscription and is safe to call more than once.
type ChangeFeed interface {
	Subscribe(filter domain.ChangeFilter, onEvent func(domain.ChangeEvent)) (unsubscribe func(), err error)
}

// ArtistRegistry covers the current report generation.
// Lookups in this and the following registries return (nil, nil) when nothing matches.
type ArtistRegistry interface {
	FindArtist(ctx context.Context, term string) (*domain.Artist, error)
	FindReport(ctx context.Context, artistID, weekEnd string) (*domain.ReportRow, error)
	ReportSections(ctx context.Context, reportID string) ([]domain.RawSection, error)
}

// EntityRegistry covers the lighter current-generation variant and demographic enrichment.
type EntityRegistry interface {
	FindEntity(ctx context.Context, term string) (*domain.Entity, error)
	EntityReportItems(ctx context.Context, entityID, weekEnd string) (*domain.EntityReportItems, error)
	Demographics(ctx context.Context, entityID string) ([]domain.DemographicRow, error)
}

// LegacyReports covers the flat legacy weekly report table.
type LegacyReports interface {
	FindLegacyReport(ctx context.Context, artistSlug, weekEnd string) (*domain.LegacyReport, error)
}

// ReportRepository combines every generation's lookups.
type ReportRepository interface {
	ArtistRegistry
	EntityRegistry
	LegacyReports
}

// PreferenceRepository persists hidden report sections per (user, entity).
type PreferenceRepository interface {
	GetHiddenSections(ctx context.Context, userID, entityID string) ([]string, error)
	UpsertHiddenSections(ctx context.Context, userID, entityID string, keys []string) error
	// DeleteHiddenSections removes the row; the default state has none.
	DeleteHiddenSections(ctx context.Context, userID, entityID string) error
}
