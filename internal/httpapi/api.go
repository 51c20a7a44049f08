// Package httpapi exposes live metrics, weekly reports and section preferences
// as a JSON API under /api, mounted on the observability server.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	"github.com/lueurxax/artist-pulse/internal/metricsync"
	"github.com/lueurxax/artist-pulse/internal/preferences"
	"github.com/lueurxax/artist-pulse/internal/report"
)

const (
	handshakeTimeout = 10 * time.Second
	bufferSize       = 1024
)

// MetricsHub hands out shared sync coordinators.
type MetricsHub interface {
	Get(p metricsync.Params) (*metricsync.Coordinator, error)
}

// ReportResolver resolves one canonical report per query.
type ReportResolver interface {
	ResolveQuery(ctx context.Context, q report.Query) *domain.CanonicalReport
}

// PreferenceStores hands out per (user, entity) preference stores.
type PreferenceStores interface {
	Get(ctx context.Context, userID, entityID string) (*preferences.Store, error)
}

// Options tunes request defaults.
type Options struct {
	// SnapshotWait bounds how long a metrics read waits for the first cycle.
	SnapshotWait     time.Duration
	DefaultDays      int
	DefaultPlatforms []domain.Platform
	// CheckOrigin overrides the websocket same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// API serves the HTTP surface.
type API struct {
	metrics  MetricsHub
	reports  ReportResolver
	prefs    PreferenceStores
	opts     Options
	logger   *zerolog.Logger
	upgrader websocket.Upgrader
}

// New wires the handlers. A nil logger disables request logging.
func New(metrics MetricsHub, reports ReportResolver, prefs PreferenceStores, opts Options, logger *zerolog.Logger) *API {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &API{
		metrics: metrics,
		reports: reports,
		prefs:   prefs,
		opts:    opts,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   bufferSize,
			WriteBufferSize:  bufferSize,
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin:      opts.CheckOrigin,
		},
	}
}

// Routes builds the chi router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(a.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/entities/{entityID}/metrics", func(r chi.Router) {
			r.Get("/", a.getMetrics)
			r.Post("/refresh", a.refreshMetrics)
			r.Put("/dimension", a.setDimension)
			r.Get("/stream", a.streamMetrics)
		})

		r.Get("/reports/{artist}", a.getReport)

		r.Route("/preferences/{entityID}", func(r chi.Router) {
			r.Use(a.requireUser)
			r.Get("/", a.getPreferences)
			r.Post("/toggle", a.toggleSection)
			r.Post("/reset", a.resetPreferences)
		})
	})

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
