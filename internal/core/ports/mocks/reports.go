package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

// ReportRepository is a thread-safe in-memory implementation of ports.ReportRepository.
// Name lookups match an exact slug first, then a case-insensitive substring of the name.
type ReportRepository struct {
	mu           sync.Mutex
	artists      []domain.Artist
	reports      []domain.ReportRow
	sections     map[string][]domain.RawSection
	entities     []domain.Entity
	items        map[string][]domain.EntityReportItems
	demographics map[string][]domain.DemographicRow
	legacy       []domain.LegacyReport
	calls        []string

	FindArtistFn        func(ctx context.Context, term string) (*domain.Artist, error)
	FindReportFn        func(ctx context.Context, artistID, weekEnd string) (*domain.ReportRow, error)
	ReportSectionsFn    func(ctx context.Context, reportID string) ([]domain.RawSection, error)
	FindEntityFn        func(ctx context.Context, term string) (*domain.Entity, error)
	EntityReportItemsFn func(ctx context.Context, entityID, weekEnd string) (*domain.EntityReportItems, error)
	DemographicsFn      func(ctx context.Context, entityID string) ([]domain.DemographicRow, error)
	FindLegacyReportFn  func(ctx context.Context, artistSlug, weekEnd string) (*domain.LegacyReport, error)
}

// NewReportRepository creates an empty mock report repository.
func NewReportRepository() *ReportRepository {
	return &ReportRepository{
		sections:     make(map[string][]domain.RawSection),
		items:        make(map[string][]domain.EntityReportItems),
		demographics: make(map[string][]domain.DemographicRow),
	}
}

// AddArtist registers an artist.
func (r *ReportRepository) AddArtist(a domain.Artist) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artists = append(r.artists, a)
}

// AddReport registers a report header with its sections.
func (r *ReportRepository) AddReport(row domain.ReportRow, sections ...domain.RawSection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, row)
	r.sections[row.ID] = append([]domain.RawSection(nil), sections...)
}

// AddEntity registers an entity.
func (r *ReportRepository) AddEntity(e domain.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = append(r.entities, e)
}

// AddEntityItems registers one week of flat report items for an entity.
func (r *ReportRepository) AddEntityItems(entityID string, week domain.EntityReportItems) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[entityID] = append(r.items[entityID], week)
}

// SetDemographics replaces the demographic rows of an entity.
func (r *ReportRepository) SetDemographics(entityID string, rows ...domain.DemographicRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.demographics[entityID] = rows
}

// AddLegacy registers a legacy report row.
func (r *ReportRepository) AddLegacy(row domain.LegacyReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.legacy = append(r.legacy, row)
}

// Calls returns the method names invoked so far, in order.
func (r *ReportRepository) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func (r *ReportRepository) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, name)
}

func matchName(term, slug, name string) (exact, partial bool) {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return false, false
	}

	if strings.EqualFold(slug, t) {
		return true, false
	}

	return false, strings.Contains(strings.ToLower(name), strings.ReplaceAll(t, "-", " "))
}

func (r *ReportRepository) FindArtist(ctx context.Context, term string) (*domain.Artist, error) {
	r.record("FindArtist")

	if r.FindArtistFn != nil {
		return r.FindArtistFn(ctx, term)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var partialHit *domain.Artist

	for i := range r.artists {
		a := r.artists[i]
		exact, partial := matchName(term, a.Slug, a.Name)

		if exact || a.ID == term {
			return &a, nil
		}

		if partial && partialHit == nil {
			partialHit = &a
		}
	}

	return partialHit, nil
}

func (r *ReportRepository) FindReport(ctx context.Context, artistID, weekEnd string) (*domain.ReportRow, error) {
	r.record("FindReport")

	if r.FindReportFn != nil {
		return r.FindReportFn(ctx, artistID, weekEnd)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var best *domain.ReportRow

	for i := range r.reports {
		row := r.reports[i]
		if row.ArtistID != artistID {
			continue
		}

		if weekEnd != "" && row.WeekEnd != weekEnd {
			continue
		}

		if best == nil || row.WeekEnd > best.WeekEnd {
			best = &row
		}
	}

	return best, nil
}

func (r *ReportRepository) ReportSections(ctx context.Context, reportID string) ([]domain.RawSection, error) {
	r.record("ReportSections")

	if r.ReportSectionsFn != nil {
		return r.ReportSectionsFn(ctx, reportID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.RawSection(nil), r.sections[reportID]...), nil
}

func (r *ReportRepository) FindEntity(ctx context.Context, term string) (*domain.Entity, error) {
	r.record("FindEntity")

	if r.FindEntityFn != nil {
		return r.FindEntityFn(ctx, term)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var partialHit *domain.Entity

	for i := range r.entities {
		e := r.entities[i]
		exact, partial := matchName(term, e.Slug, e.Name)

		if exact || e.ID == term {
			return &e, nil
		}

		if partial && partialHit == nil {
			partialHit = &e
		}
	}

	return partialHit, nil
}

func (r *ReportRepository) EntityReportItems(ctx context.Context, entityID, weekEnd string) (*domain.EntityReportItems, error) {
	r.record("EntityReportItems")

	if r.EntityReportItemsFn != nil {
		return r.EntityReportItemsFn(ctx, entityID, weekEnd)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	weeks := append([]domain.EntityReportItems(nil), r.items[entityID]...)
	sort.SliceStable(weeks, func(i, j int) bool { return weeks[i].WeekEnd > weeks[j].WeekEnd })

	for i := range weeks {
		if weekEnd == "" || weeks[i].WeekEnd == weekEnd {
			return &weeks[i], nil
		}
	}

	return nil, nil
}

func (r *ReportRepository) Demographics(ctx context.Context, entityID string) ([]domain.DemographicRow, error) {
	r.record("Demographics")

	if r.DemographicsFn != nil {
		return r.DemographicsFn(ctx, entityID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.DemographicRow(nil), r.demographics[entityID]...), nil
}

func (r *ReportRepository) FindLegacyReport(ctx context.Context, artistSlug, weekEnd string) (*domain.LegacyReport, error) {
	r.record("FindLegacyReport")

	if r.FindLegacyReportFn != nil {
		return r.FindLegacyReportFn(ctx, artistSlug, weekEnd)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var best *domain.LegacyReport

	for i := range r.legacy {
		row := r.legacy[i]
		if !strings.EqualFold(row.ArtistSlug, artistSlug) {
			continue
		}

		if weekEnd != "" && row.WeekEnd != weekEnd {
			continue
		}

		if best == nil || row.WeekEnd > best.WeekEnd {
			best = &row
		}
	}

	return best, nil
}
