package httpapi

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	"github.com/lueurxax/artist-pulse/internal/core/ports/mocks"
	"github.com/lueurxax/artist-pulse/internal/metricsync"
	"github.com/lueurxax/artist-pulse/internal/preferences"
	"github.com/lueurxax/artist-pulse/internal/report"
)

const (
	testEntity = "ent-1"
	testUser   = "0b9ee4c8-4fb5-4f43-9a8d-3e3a0a8d2f11"
)

type harness struct {
	api     *API
	handler http.Handler
	metrics *mocks.MetricsRepository
	reports *mocks.ReportRepository
	prefs   *mocks.PreferenceRepository
	stores  *preferences.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	followers := int64(1000)

	metricsRepo := mocks.NewMetricsRepository()
	metricsRepo.SetLatest(domain.MetricSnapshot{
		EntityID:       testEntity,
		Platform:       domain.PlatformSpotify,
		CapturedAt:     time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC),
		FollowersTotal: &followers,
	})

	registry := metricsync.NewRegistry(context.Background(), metricsRepo, nil, metricsync.RegistryConfig{})
	t.Cleanup(registry.Close)

	reportRepo := mocks.NewReportRepository()
	reportRepo.AddArtist(domain.Artist{ID: "a1", Name: "Karol G", Slug: "karol-g"})
	reportRepo.AddReport(domain.ReportRow{ID: "r1", ArtistID: "a1", WeekStart: "2025-09-29", WeekEnd: "2025-10-06"},
		domain.RawSection{Key: "summary", Payload: []byte(`"Strong week"`)},
	)

	prefRepo := mocks.NewPreferenceRepository()
	stores := preferences.NewRegistry(prefRepo, preferences.RegistryConfig{}, nil)

	api := New(registry, report.NewResolver(reportRepo, nil), stores, Options{
		SnapshotWait: 2 * time.Second,
		DefaultDays:  30,
	}, nil)

	return &harness{
		api:     api,
		handler: api.Routes(),
		metrics: metricsRepo,
		reports: reportRepo,
		prefs:   prefRepo,
		stores:  stores,
	}
}

func (h *harness) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	return rec
}

type metricsBody struct {
	State      string                        `json:"state"`
	Cycles     uint64                        `json:"cycles"`
	Metrics    []domain.MergedPlatformMetric `json:"metrics"`
	Dimensions map[string]string             `json:"dimensions"`
	Selected   map[string]selectedValues     `json:"selected"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

func TestGetMetrics_WaitsForFirstCycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/entities/ent-1/metrics?platforms=spotify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[metricsBody](t, rec.Body.Bytes())
	assert.Equal(t, string(metricsync.StateReady), body.State)
	assert.GreaterOrEqual(t, body.Cycles, uint64(1))
	require.Len(t, body.Metrics, 1)
	require.NotNil(t, body.Metrics[0].Latest)
	assert.Equal(t, int64(1000), *body.Metrics[0].Latest.FollowersTotal)
	assert.Equal(t, map[string]string{"spotify": "followers"}, body.Dimensions)

	sel := body.Selected["spotify"]
	assert.Equal(t, domain.DimensionFollowers, sel.Dimension)
	require.NotNil(t, sel.Value)
	assert.Equal(t, int64(1000), *sel.Value)
	assert.Nil(t, sel.Delta24h)
}

func TestGetMetrics_BadRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		target string
	}{
		{name: "bad days", target: "/api/entities/ent-1/metrics?platforms=spotify&days=abc"},
		{name: "negative days", target: "/api/entities/ent-1/metrics?platforms=spotify&days=-3"},
		{name: "no platforms", target: "/api/entities/ent-1/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRefreshMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/entities/ent-1/metrics?platforms=spotify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	before := h.metrics.LatestCalls()

	rec = h.do(t, http.MethodPost, "/api/entities/ent-1/metrics/refresh?platforms=spotify", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return h.metrics.LatestCalls() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSetDimension(t *testing.T) {
	h := newHarness(t)
	target := "/api/entities/ent-1/metrics/dimension?platforms=spotify"

	rec := h.do(t, http.MethodPut, target, `{"platform":"spotify","dimension":"streams"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[metricsBody](t, rec.Body.Bytes())
	assert.Equal(t, "streams", body.Dimensions["spotify"])
	assert.Equal(t, domain.DimensionStreams, body.Selected["spotify"].Dimension)
	assert.Nil(t, body.Selected["spotify"].Value)

	rec = h.do(t, http.MethodPut, target, `{"platform":"spotify","dimension":"likes"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, target, `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamMetrics(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/entities/ent-1/metrics/stream?platforms=spotify"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.NotEmpty(t, decode[metricsBody](t, first).State)

	refresh, err := http.Post(srv.URL+"/api/entities/ent-1/metrics/refresh?platforms=spotify", "application/json", nil)
	require.NoError(t, err)
	refresh.Body.Close()

	_, next, err := conn.ReadMessage()
	require.NoError(t, err)

	body := decode[metricsBody](t, next)
	assert.Equal(t, string(metricsync.StateReady), body.State)
	assert.GreaterOrEqual(t, body.Cycles, uint64(1))
}

func TestGetReport(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/reports/karol-g", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rep := decode[domain.CanonicalReport](t, rec.Body.Bytes())
	assert.Equal(t, domain.GenerationCurrent, rep.Generation)
	require.NotNil(t, rep.Summary)
	assert.Equal(t, "Strong week", *rep.Summary)

	rec = h.do(t, http.MethodGet, "/api/reports/karol-g?week=2025-10-06", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/reports/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/reports/karol-g?week=someday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferences_RequireUser(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/preferences/ent-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/preferences/ent-1", "", map[string]string{UserIDHeader: "user-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferences_ToggleAndReset(t *testing.T) {
	h := newHarness(t)
	user := map[string]string{UserIDHeader: testUser}

	rec := h.do(t, http.MethodPost, "/api/preferences/ent-1/toggle", `{"key":"summary"}`, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	toggled := decode[toggleResponse](t, rec.Body.Bytes())
	assert.False(t, toggled.Visible)
	assert.Equal(t, []string{"summary"}, toggled.HiddenSections)

	rec = h.do(t, http.MethodGet, "/api/preferences/ent-1", "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"summary"}, decode[preferencesResponse](t, rec.Body.Bytes()).HiddenSections)

	h.stores.Wait()

	row, ok := h.prefs.Row(testUser, testEntity)
	require.True(t, ok)
	assert.Equal(t, []string{"summary"}, row)

	rec = h.do(t, http.MethodPost, "/api/preferences/ent-1/reset", "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[preferencesResponse](t, rec.Body.Bytes()).HiddenSections)

	h.stores.Wait()

	_, ok = h.prefs.Row(testUser, testEntity)
	assert.False(t, ok)

	rec = h.do(t, http.MethodPost, "/api/preferences/ent-1/toggle", `{"key":"  "}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondJSON_EncodeFailure(t *testing.T) {
	api := New(nil, nil, nil, Options{}, nil)
	rec := httptest.NewRecorder()

	api.respondJSON(rec, http.StatusOK, map[string]float64{"growth": math.NaN()})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[errorResponse](t, rec.Body.Bytes())
	assert.Equal(t, "internal", body.Error.Code)
}

func TestGetReport_NonFiniteMetricStillServes(t *testing.T) {
	h := newHarness(t)

	h.reports.AddArtist(domain.Artist{ID: "a2", Name: "Feid", Slug: "feid"})
	h.reports.AddReport(domain.ReportRow{ID: "r2", ArtistID: "a2", WeekStart: "2025-09-29", WeekEnd: "2025-10-06"},
		domain.RawSection{Key: "summary", Payload: []byte(`"Steady"`)},
		domain.RawSection{Key: "platform_metrics", Position: 1, Payload: []byte(`[{"section":"spotify","growth":"NaN","streams":10}]`)},
	)

	rec := h.do(t, http.MethodGet, "/api/reports/feid", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rep := decode[domain.CanonicalReport](t, rec.Body.Bytes())
	require.Len(t, rep.PlatformMetricsBySection, 1)
	assert.Equal(t, map[string]float64{"streams": 10}, rep.PlatformMetricsBySection[0].Metrics)
}
