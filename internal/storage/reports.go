package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	"github.com/lueurxax/artist-pulse/internal/platform/textutil"
)

const maxLookupCandidates = 20

// candidate is a registry row considered for a lookup term.
type candidate struct {
	ID   string
	Name string
	Slug string
	Kind string
}

// bestMatch picks the candidate for term: an exact id or slug wins, then an
// exact folded name, then the shortest name containing the term.
func bestMatch(term string, candidates []candidate) *candidate {
	if len(candidates) == 0 {
		return nil
	}

	folded := textutil.Fold(term)
	slug := textutil.Slugify(term)

	rank := func(c candidate) int {
		switch {
		case c.ID == term || c.Slug == term || (slug != "" && c.Slug == slug):
			return 0
		case textutil.Fold(c.Name) == folded:
			return 1
		default:
			return 2
		}
	}

	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i]), rank(sorted[j])
		if ri != rj {
			return ri < rj
		}

		return len([]rune(sorted[i].Name)) < len([]rune(sorted[j].Name))
	})

	return &sorted[0]
}

// lookupCandidates loads rows of table whose id, slug or accent-folded name
// match term, ranked in SQL with the same order bestMatch applies so the limit
// never cuts an exact match. table is always a package constant.
func (db *DB) lookupCandidates(ctx context.Context, table, term string) ([]candidate, error) {
	kindColumn := "''"
	if table == "entities" {
		kindColumn = "coalesce(kind, '')"
	}

	query := fmt.Sprintf(`
		SELECT id, name, slug, %s
		FROM %s
		WHERE id = $1 OR slug = $2 OR lower(unaccent(name)) LIKE '%%' || $3 || '%%' ESCAPE '\'
		ORDER BY (id = $1 OR slug = $2) DESC, lower(unaccent(name)) = $4 DESC, char_length(name), id
		LIMIT %d`, kindColumn, table, maxLookupCandidates)

	folded := textutil.Fold(term)

	rows, err := db.Pool.Query(ctx, query, term, textutil.Slugify(term), escapeLike(folded), folded)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (candidate, error) {
		var c candidate

		err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Kind)

		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}

	return out, nil
}

// FindArtist resolves a slug, id or display name against the artist registry.
func (db *DB) FindArtist(ctx context.Context, term string) (*domain.Artist, error) {
	candidates, err := db.lookupCandidates(ctx, "artists", term)
	if err != nil {
		return nil, err
	}

	c := bestMatch(term, candidates)
	if c == nil {
		return nil, nil
	}

	return &domain.Artist{ID: c.ID, Name: c.Name, Slug: c.Slug}, nil
}

// FindReport returns the report header for the given week end, or the most
// recent one when weekEnd is empty.
func (db *DB) FindReport(ctx context.Context, artistID, weekEnd string) (*domain.ReportRow, error) {
	var (
		row                 domain.ReportRow
		weekStart, weekEndD pgtype.Date
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, artist_id, week_start, week_end
		FROM reports
		WHERE artist_id = $1 AND ($2::date IS NULL OR week_end = $2::date)
		ORDER BY week_end DESC
		LIMIT 1`,
		artistID, toDate(weekEnd)).Scan(&row.ID, &row.ArtistID, &weekStart, &weekEndD)
	if noRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}

	row.WeekStart = fromDate(weekStart)
	row.WeekEnd = fromDate(weekEndD)

	return &row, nil
}

// ReportSections returns the raw sections of a report in declared order.
func (db *DB) ReportSections(ctx context.Context, reportID string) ([]domain.RawSection, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT section_key, position, payload
		FROM report_sections
		WHERE report_id = $1
		ORDER BY position, id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query report sections: %w", err)
	}

	return collectSections(rows)
}

// FindEntity resolves a slug, id or display name against the entity registry.
func (db *DB) FindEntity(ctx context.Context, term string) (*domain.Entity, error) {
	candidates, err := db.lookupCandidates(ctx, "entities", term)
	if err != nil {
		return nil, err
	}

	c := bestMatch(term, candidates)
	if c == nil {
		return nil, nil
	}

	return &domain.Entity{ID: c.ID, Name: c.Name, Slug: c.Slug, Kind: c.Kind}, nil
}

// EntityReportItems returns the items of the requested entity week, or of the
// most recent week when weekEnd is empty.
func (db *DB) EntityReportItems(ctx context.Context, entityID, weekEnd string) (*domain.EntityReportItems, error) {
	var weekStart, weekEndD pgtype.Date

	err := db.Pool.QueryRow(ctx, `
		SELECT week_start, week_end
		FROM entity_report_items
		WHERE entity_id = $1 AND ($2::date IS NULL OR week_end = $2::date)
		ORDER BY week_end DESC
		LIMIT 1`,
		entityID, toDate(weekEnd)).Scan(&weekStart, &weekEndD)
	if noRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query entity week: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT category, position, payload
		FROM entity_report_items
		WHERE entity_id = $1 AND week_end = $2
		ORDER BY position, id`, entityID, weekEndD)
	if err != nil {
		return nil, fmt.Errorf("query entity report items: %w", err)
	}

	items, err := collectSections(rows)
	if err != nil {
		return nil, err
	}

	return &domain.EntityReportItems{
		WeekStart: fromDate(weekStart),
		WeekEnd:   fromDate(weekEndD),
		Items:     items,
	}, nil
}

// Demographics returns the stored audience buckets of an entity.
func (db *DB) Demographics(ctx context.Context, entityID string) ([]domain.DemographicRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT bucket_type, label, share
		FROM entity_demographics
		WHERE entity_id = $1
		ORDER BY bucket_type, share DESC, label`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query demographics: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DemographicRow, error) {
		var d domain.DemographicRow

		err := row.Scan(&d.BucketType, &d.Label, &d.Share)

		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan demographics: %w", err)
	}

	return out, nil
}

// FindLegacyReport reads the flat legacy table by slug, case-insensitively.
func (db *DB) FindLegacyReport(ctx context.Context, artistSlug, weekEnd string) (*domain.LegacyReport, error) {
	var (
		row                            domain.LegacyReport
		name, summary, sentiment, recs pgtype.Text
		weekStart, weekEndD            pgtype.Date
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT artist_slug, artist_name, week_start, week_end, summary, fan_sentiment, recommendations
		FROM weekly_reports_legacy
		WHERE lower(artist_slug) = lower($1) AND ($2::date IS NULL OR week_end = $2::date)
		ORDER BY week_end DESC
		LIMIT 1`,
		artistSlug, toDate(weekEnd)).Scan(&row.ArtistSlug, &name, &weekStart, &weekEndD, &summary, &sentiment, &recs)
	if noRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query legacy report: %w", err)
	}

	row.ArtistName = fromText(name)
	row.WeekStart = fromDate(weekStart)
	row.WeekEnd = fromDate(weekEndD)
	row.Summary = SanitizeUTF8(fromText(summary))
	row.FanSentiment = SanitizeUTF8(fromText(sentiment))
	row.Recommendations = SanitizeUTF8(fromText(recs))

	return &row, nil
}

func collectSections(rows pgx.Rows) ([]domain.RawSection, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RawSection, error) {
		var (
			s        domain.RawSection
			position pgtype.Int4
		)

		err := row.Scan(&s.Key, &position, &s.Payload)
		s.Position = int(position.Int32)

		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan sections: %w", err)
	}

	return out, nil
}
