//go:build integration

package db

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

const (
	postgresImage = "postgres:16-alpine"
	postgresPort  = "5432/tcp"
	testUserID    = "0b9ee4c8-4fb5-4f43-9a8d-3e3a0a8d2f11"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// newPostgres starts a disposable postgres, applies the migrations and returns
// a connected DB. Both are torn down with the test.
func newPostgres(t *testing.T) *DB {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{postgresPort},
			Env: map[string]string{
				"POSTGRES_USER":     "pulse",
				"POSTGRES_PASSWORD": "pulse",
				"POSTGRES_DB":       "pulse",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort(postgresPort),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, postgresPort)
	require.NoError(t, err)

	logger := zerolog.Nop()
	dsn := fmt.Sprintf("postgres://pulse:pulse@%s:%s/pulse?sslmode=disable", host, port.Port())

	database, err := New(ctx, dsn, &logger)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, database.Migrate(ctx))

	return database
}

func mustExec(t *testing.T, database *DB, sql string, args ...any) {
	t.Helper()

	_, err := database.Pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err, sql)
}

func TestPostgres(t *testing.T) {
	database := newPostgres(t)
	ctx := context.Background()

	// Reports for one artist over two weeks, plus 25 names containing "bad".
	mustExec(t, database, `INSERT INTO artists (id, name, slug) VALUES ('a1', 'Karol G', 'karol-g'), ('bad', 'Bad', 'bad-artist')`)

	for i := range 25 {
		mustExec(t, database, `INSERT INTO artists (id, name, slug) VALUES ($1, $2, $3)`,
			fmt.Sprintf("b%02d", i), fmt.Sprintf("Bad %02d", i), fmt.Sprintf("bad-%02d", i))
	}

	mustExec(t, database, `INSERT INTO reports (id, artist_id, week_start, week_end) VALUES
		('r-old', 'a1', '2025-09-29', '2025-10-06'),
		('r-new', 'a1', '2025-10-06', '2025-10-13')`)
	mustExec(t, database, `INSERT INTO report_sections (report_id, section_key, position, payload) VALUES
		('r-new', 'highlights', 1, '[{"title":"Sold out"}]'),
		('r-new', 'summary', 0, '"latest week"')`)

	t.Run("find artist ranks before the limit", func(t *testing.T) {
		tests := []struct {
			term string
			want string
		}{
			{term: "Bad", want: "bad"},
			{term: "bad-artist", want: "bad"},
			{term: "karol-g", want: "a1"},
			{term: "KÁROL G", want: "a1"},
			{term: "Bad 07", want: "b07"},
		}

		for _, tt := range tests {
			got, err := database.FindArtist(ctx, tt.term)
			require.NoError(t, err, tt.term)
			require.NotNil(t, got, tt.term)
			assert.Equal(t, tt.want, got.ID, tt.term)
		}

		got, err := database.FindArtist(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("find report most recent and exact week", func(t *testing.T) {
		latest, err := database.FindReport(ctx, "a1", "")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "r-new", latest.ID)
		assert.Equal(t, "2025-10-13", latest.WeekEnd)

		older, err := database.FindReport(ctx, "a1", "2025-10-06")
		require.NoError(t, err)
		require.NotNil(t, older)
		assert.Equal(t, "r-old", older.ID)
		assert.Equal(t, "2025-09-29", older.WeekStart)

		missing, err := database.FindReport(ctx, "a1", "2025-01-05")
		require.NoError(t, err)
		assert.Nil(t, missing)

		sections, err := database.ReportSections(ctx, "r-new")
		require.NoError(t, err)
		require.Len(t, sections, 2)
		assert.Equal(t, "summary", sections[0].Key)
		assert.JSONEq(t, `"latest week"`, string(sections[0].Payload))
	})

	t.Run("entity report items and demographics", func(t *testing.T) {
		mustExec(t, database, `INSERT INTO entities (id, name, slug, kind) VALUES ('e1', 'Feid', 'feid', 'artist')`)
		mustExec(t, database, `INSERT INTO entity_report_items (entity_id, week_start, week_end, category, position, payload) VALUES
			('e1', '2025-09-29', '2025-10-06', 'summary', 0, '"old"'),
			('e1', '2025-10-06', '2025-10-13', 'highlight', 2, '{"title":"second"}'),
			('e1', '2025-10-06', '2025-10-13', 'highlight', 1, '{"title":"first"}')`)
		mustExec(t, database, `INSERT INTO entity_demographics (entity_id, bucket_type, label, share) VALUES
			('e1', 'country', 'CO', 0.6), ('e1', 'country', 'MX', 0.2)`)

		entity, err := database.FindEntity(ctx, "Feid")
		require.NoError(t, err)
		require.NotNil(t, entity)
		assert.Equal(t, "artist", entity.Kind)

		week, err := database.EntityReportItems(ctx, "e1", "")
		require.NoError(t, err)
		require.NotNil(t, week)
		assert.Equal(t, "2025-10-13", week.WeekEnd)
		require.Len(t, week.Items, 2)
		assert.JSONEq(t, `{"title":"first"}`, string(week.Items[0].Payload))

		week, err = database.EntityReportItems(ctx, "e1", "2025-10-06")
		require.NoError(t, err)
		require.NotNil(t, week)
		require.Len(t, week.Items, 1)
		assert.Equal(t, "summary", week.Items[0].Key)

		rows, err := database.Demographics(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "CO", rows[0].Label)
	})

	t.Run("legacy report by slug", func(t *testing.T) {
		mustExec(t, database, `INSERT INTO weekly_reports_legacy (artist_slug, artist_name, week_start, week_end, summary) VALUES
			('Karol-G', 'KAROL G', '2025-09-29', '2025-10-06', 'older'),
			('Karol-G', 'KAROL G', '2025-10-06', '2025-10-13', 'newer')`)

		row, err := database.FindLegacyReport(ctx, "karol-g", "")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "newer", row.Summary)

		row, err = database.FindLegacyReport(ctx, "karol-g", "2025-10-06")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "older", row.Summary)

		row, err = database.FindLegacyReport(ctx, "karol-g", "2024-01-07")
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("snapshots and delta views", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)

		for _, s := range []struct {
			at        time.Time
			followers int64
		}{
			{at: now.Add(-8 * 24 * time.Hour), followers: 900},
			{at: now.Add(-48 * time.Hour), followers: 980},
			{at: now, followers: 1000},
		} {
			mustExec(t, database, `INSERT INTO dsp_snapshots (entity_id, platform, captured_at, followers_total) VALUES ('e1', 'spotify', $1, $2)`,
				s.at, s.followers)
		}

		platforms := []domain.Platform{domain.PlatformSpotify}

		latest, err := database.LatestSnapshots(ctx, "e1", platforms)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, int64(1000), *latest[0].FollowersTotal)
		assert.Nil(t, latest[0].StreamsTotal)

		d24, err := database.Deltas(ctx, "e1", platforms, domain.Window24h)
		require.NoError(t, err)
		require.Len(t, d24, 1)
		assert.Equal(t, int64(20), *d24[0].Followers)
		assert.Nil(t, d24[0].Streams)

		d7, err := database.Deltas(ctx, "e1", platforms, domain.Window7d)
		require.NoError(t, err)
		require.Len(t, d7, 1)
		assert.Equal(t, int64(100), *d7[0].Followers)

		series, err := database.Timeseries(ctx, "e1", domain.PlatformSpotify, now.Add(-72*time.Hour))
		require.NoError(t, err)
		require.Len(t, series, 2)
		assert.True(t, series[0].CapturedAt.Before(series[1].CapturedAt))
	})

	t.Run("hidden sections upsert and delete", func(t *testing.T) {
		keys, err := database.GetHiddenSections(ctx, testUserID, "e1")
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, database.UpsertHiddenSections(ctx, testUserID, "e1", []string{"highlights"}))
		require.NoError(t, database.UpsertHiddenSections(ctx, strings.ToUpper(testUserID), "e1", []string{"charts", "news"}))

		keys, err = database.GetHiddenSections(ctx, testUserID, "e1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"charts", "news"}, keys)

		var count int
		require.NoError(t, database.Pool.QueryRow(ctx, `SELECT count(*) FROM report_section_preferences`).Scan(&count))
		assert.Equal(t, 1, count)

		require.NoError(t, database.DeleteHiddenSections(ctx, testUserID, "e1"))
		require.NoError(t, database.DeleteHiddenSections(ctx, testUserID, "e1"))

		require.NoError(t, database.Pool.QueryRow(ctx, `SELECT count(*) FROM report_section_preferences`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("notifier delivers snapshot inserts", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		n := NewNotifier(database.Pool, "", nil)

		events := make(chan domain.ChangeEvent, 16)
		unsubscribe, err := n.Subscribe(domain.ChangeFilter{Table: "dsp_snapshots", EntityID: "e2"}, func(ev domain.ChangeEvent) {
			select {
			case events <- ev:
			default:
			}
		})
		require.NoError(t, err)
		defer unsubscribe()

		done := make(chan error, 1)
		go func() { done <- n.Run(runCtx) }()

		base := time.Now().UTC().Truncate(time.Second)
		i := 0

		// LISTEN starts asynchronously; keep inserting until one is delivered.
		require.Eventually(t, func() bool {
			i++
			if _, err := database.Pool.Exec(ctx, `INSERT INTO dsp_snapshots (entity_id, platform, captured_at) VALUES ('e2', 'youtube', $1)`,
				base.Add(time.Duration(i)*time.Second)); err != nil {
				return false
			}

			select {
			case ev := <-events:
				return ev.EntityID == "e2" && ev.Platform == domain.PlatformYouTube
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 10*time.Second, 50*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
	})
}
