package report

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
	"github.com/lueurxax/artist-pulse/internal/platform/textutil"
)

const generationDemographics = "demographics"

// currentGeneration reads artists → reports → report_sections.
type currentGeneration struct {
	repo       ports.ArtistRegistry
	normalizer *Normalizer
	enricher   *demographicsEnricher
}

func (g *currentGeneration) Name() string { return domain.GenerationCurrent }

func (g *currentGeneration) Try(ctx context.Context, q Query, _ []Attempt) (Attempt, error) {
	artist, err := g.repo.FindArtist(ctx, q.Term)
	if err != nil {
		return Attempt{}, fmt.Errorf("find artist: %w", err)
	}

	if artist == nil {
		return Attempt{}, nil
	}

	a := Attempt{SubjectMatched: true, SubjectSlug: artist.Slug}

	row, err := g.repo.FindReport(ctx, artist.ID, q.WeekEnd)
	if err != nil {
		return Attempt{}, fmt.Errorf("find report: %w", err)
	}

	if row == nil {
		return a, nil
	}

	sections, err := g.repo.ReportSections(ctx, row.ID)
	if err != nil {
		return Attempt{}, fmt.Errorf("report sections: %w", err)
	}

	rep := g.normalizer.Assemble(sections)
	if !rep.HasContent() {
		return a, nil
	}

	rep.ArtistName = artist.Name
	rep.WeekStart = formatDate(row.WeekStart)
	rep.WeekEnd = formatDate(row.WeekEnd)

	g.enricher.enrichArtist(ctx, rep, artist)

	a.Report = rep

	return a, nil
}

// currentEntityGeneration assembles a report straight from entity_report_items.
// It only runs when no newer generation matched the artist.
type currentEntityGeneration struct {
	repo       ports.EntityRegistry
	normalizer *Normalizer
	enricher   *demographicsEnricher
}

func (g *currentEntityGeneration) Name() string { return domain.GenerationCurrentEntity }

func (g *currentEntityGeneration) Try(ctx context.Context, q Query, prior []Attempt) (Attempt, error) {
	for _, p := range prior {
		if p.SubjectMatched {
			return Attempt{SubjectMatched: true, SubjectSlug: p.SubjectSlug}, nil
		}
	}

	entity, err := g.repo.FindEntity(ctx, q.Term)
	if err != nil {
		return Attempt{}, fmt.Errorf("find entity: %w", err)
	}

	if entity == nil {
		return Attempt{}, nil
	}

	a := Attempt{SubjectMatched: true, SubjectSlug: entity.Slug}

	week, err := g.repo.EntityReportItems(ctx, entity.ID, q.WeekEnd)
	if err != nil {
		return Attempt{}, fmt.Errorf("entity report items: %w", err)
	}

	if week == nil || len(week.Items) == 0 {
		return a, nil
	}

	rep := g.normalizer.Assemble(week.Items)
	if !rep.HasContent() {
		return a, nil
	}

	rep.ArtistName = entity.Name
	rep.WeekStart = formatDate(week.WeekStart)
	rep.WeekEnd = formatDate(week.WeekEnd)

	g.enricher.enrich(ctx, rep, entity.ID)

	a.Report = rep

	return a, nil
}

// legacyGeneration reads the flat weekly_reports_legacy table.
type legacyGeneration struct {
	repo       ports.LegacyReports
	normalizer *Normalizer
}

func (g *legacyGeneration) Name() string { return domain.GenerationLegacy }

func (g *legacyGeneration) Try(ctx context.Context, q Query, prior []Attempt) (Attempt, error) {
	slug := q.Slug

	for _, p := range prior {
		if p.SubjectMatched && p.SubjectSlug != "" {
			slug = p.SubjectSlug

			break
		}
	}

	row, err := g.repo.FindLegacyReport(ctx, slug, q.WeekEnd)
	if err != nil {
		return Attempt{}, fmt.Errorf("find legacy report: %w", err)
	}

	if row == nil {
		return Attempt{}, nil
	}

	rep := g.normalizer.Assemble(legacySections(row))
	rep.ArtistName = firstNonEmpty(row.ArtistName, row.ArtistSlug)
	rep.WeekStart = formatDate(row.WeekStart)
	rep.WeekEnd = formatDate(row.WeekEnd)

	return Attempt{Report: rep, SubjectMatched: true, SubjectSlug: row.ArtistSlug}, nil
}

// legacySections presents the legacy text columns as sections so they go
// through the same normalizer as the newer generations.
func legacySections(row *domain.LegacyReport) []domain.RawSection {
	columns := []struct {
		key   string
		value string
	}{
		{"summary", row.Summary},
		{"fan_sentiment", row.FanSentiment},
		{"recommendations", row.Recommendations},
	}

	out := make([]domain.RawSection, 0, len(columns))

	for i, c := range columns {
		if c.value == "" {
			continue
		}

		payload, err := json.Marshal(c.value)
		if err != nil {
			continue
		}

		out = append(out, domain.RawSection{Key: c.key, Position: i, Payload: payload})
	}

	return out
}

// demographicsEnricher adds audience buckets from entity_demographics.
// Failures are logged and counted, never returned.
type demographicsEnricher struct {
	repo   ports.EntityRegistry
	logger *zerolog.Logger
}

// enrichArtist looks up the entity sharing the artist's slug. A fuzzy lookup
// hit for another entity is ignored.
func (e *demographicsEnricher) enrichArtist(ctx context.Context, rep *domain.CanonicalReport, artist *domain.Artist) {
	if !rep.Demographics.IsEmpty() {
		return
	}

	slug := firstNonEmpty(artist.Slug, textutil.Slugify(artist.Name))
	if slug == "" {
		return
	}

	entity, err := e.repo.FindEntity(ctx, slug)
	if err != nil {
		e.fail(err, slug)

		return
	}

	if entity == nil || firstNonEmpty(entity.Slug, textutil.Slugify(entity.Name)) != slug {
		return
	}

	e.enrich(ctx, rep, entity.ID)
}

func (e *demographicsEnricher) enrich(ctx context.Context, rep *domain.CanonicalReport, entityID string) {
	if !rep.Demographics.IsEmpty() {
		return
	}

	rows, err := e.repo.Demographics(ctx, entityID)
	if err != nil {
		e.fail(err, entityID)

		return
	}

	if d := DemographicsFromRows(rows); d != nil {
		rep.Demographics = d
	}
}

func (e *demographicsEnricher) fail(err error, subject string) {
	observability.ReportGenerationErrors.WithLabelValues(generationDemographics).Inc()
	e.logger.Warn().Err(err).Str("subject", subject).Msg("demographics enrichment failed")
}
