package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
)

const snapshotColumns = `entity_id, platform, captured_at, followers_total, monthly_listeners,
	streams_total, rank_in_country, source_url`

// deltaViews maps a window to its view and column suffix. Only these names are
// ever interpolated into SQL.
var deltaViews = map[domain.DeltaWindow]struct {
	view   string
	suffix string
}{
	domain.Window24h: {view: "dsp_delta_24h", suffix: "24h"},
	domain.Window7d:  {view: "dsp_delta_7d", suffix: "7d"},
}

func platformNames(platforms []domain.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}

	return out
}

// LatestSnapshots reads dsp_latest for the requested platforms.
func (db *DB) LatestSnapshots(ctx context.Context, entityID string, platforms []domain.Platform) ([]domain.MetricSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM dsp_latest
		WHERE entity_id = $1 AND platform = ANY($2)
		ORDER BY platform`,
		entityID, platformNames(platforms))
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}

	return collectSnapshots(rows)
}

// Deltas reads the 24h or 7d delta view for the requested platforms.
func (db *DB) Deltas(ctx context.Context, entityID string, platforms []domain.Platform, window domain.DeltaWindow) ([]domain.DeltaRow, error) {
	v, ok := deltaViews[window]
	if !ok {
		return nil, fmt.Errorf("delta window %q: %w", window, coreerrors.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT entity_id, platform, followers_delta_%[2]s, monthly_listeners_delta_%[2]s, streams_delta_%[2]s
		FROM %[1]s
		WHERE entity_id = $1 AND platform = ANY($2)
		ORDER BY platform`, v.view, v.suffix)

	rows, err := db.Pool.Query(ctx, query, entityID, platformNames(platforms))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", v.view, err)
	}
	defer rows.Close()

	var out []domain.DeltaRow

	for rows.Next() {
		var (
			row                           domain.DeltaRow
			platform                      string
			followers, listeners, streams pgtype.Int8
		)

		if err := rows.Scan(&row.EntityID, &platform, &followers, &listeners, &streams); err != nil {
			return nil, fmt.Errorf("scan %s: %w", v.view, err)
		}

		row.Platform = domain.Platform(platform)
		row.Window = window
		row.Followers = fromInt8(followers)
		row.MonthlyListeners = fromInt8(listeners)
		row.Streams = fromInt8(streams)

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", v.view, err)
	}

	return out, nil
}

// Timeseries returns raw snapshots captured at or after since, oldest first.
func (db *DB) Timeseries(ctx context.Context, entityID string, platform domain.Platform, since time.Time) ([]domain.MetricSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM dsp_snapshots
		WHERE entity_id = $1 AND platform = $2 AND captured_at >= $3
		ORDER BY captured_at ASC`,
		entityID, string(platform), since)
	if err != nil {
		return nil, fmt.Errorf("query timeseries: %w", err)
	}

	return collectSnapshots(rows)
}

func collectSnapshots(rows pgx.Rows) ([]domain.MetricSnapshot, error) {
	defer rows.Close()

	var out []domain.MetricSnapshot

	for rows.Next() {
		var (
			s                             domain.MetricSnapshot
			platform                      string
			followers, listeners, streams pgtype.Int8
			rank                          pgtype.Int4
			sourceURL                     pgtype.Text
		)

		if err := rows.Scan(&s.EntityID, &platform, &s.CapturedAt, &followers, &listeners, &streams, &rank, &sourceURL); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		s.Platform = domain.Platform(platform)
		s.CapturedAt = s.CapturedAt.UTC()
		s.FollowersTotal = fromInt8(followers)
		s.MonthlyListeners = fromInt8(listeners)
		s.StreamsTotal = fromInt8(streams)
		s.RankInCountry = fromInt4(rank)
		s.SourceURL = fromText(sourceURL)

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return out, nil
}
