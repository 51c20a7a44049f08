// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - API mode: JSON API with live metric streams, reports and preferences
//   - Sync mode: leader-elected worker keeping watched entities' metrics warm
//   - Report mode: resolve one weekly report and print it
//   - Migrate mode: apply database migrations and exit
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/httpapi"
	"github.com/lueurxax/artist-pulse/internal/metricsync"
	"github.com/lueurxax/artist-pulse/internal/platform/config"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
	"github.com/lueurxax/artist-pulse/internal/platform/worker"
	"github.com/lueurxax/artist-pulse/internal/preferences"
	"github.com/lueurxax/artist-pulse/internal/report"
	db "github.com/lueurxax/artist-pulse/internal/storage"
)

const (
	logFieldEntity   = "entity_id"
	logFieldMode     = "mode"
	msgLeaderWaiting = "another sync worker holds the leader lock, waiting"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// services are the long-lived components shared by the serving modes.
type services struct {
	notifier *db.Notifier
	registry *metricsync.Registry
	breaker  *metricsync.BreakerSource
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// RunAPI serves the JSON API, health probes and metrics until ctx is canceled.
func (a *App) RunAPI(ctx context.Context) error {
	a.logger.Info().Str(logFieldMode, "api").Msg("Starting API mode")

	g, gctx := errgroup.WithContext(ctx)

	svc := a.newServices(gctx)

	resolver, err := a.newResolver()
	if err != nil {
		return err
	}

	stores := preferences.NewRegistry(a.database, preferences.RegistryConfig{
		IdleTTL: a.cfg.PreferencesCfg().IdleTTL,
	}, a.logger)
	sync := a.cfg.SyncCfg()

	api := httpapi.New(svc.registry, resolver, stores, httpapi.Options{
		SnapshotWait:     sync.SnapshotWait,
		DefaultDays:      sync.DefaultDays,
		DefaultPlatforms: platforms(sync.Platforms),
	}, a.logger)

	srv := observability.NewServerWithAPI(a.database, a.cfg.HTTPPort, api.Routes(), a.logger)
	svc.addChecks(srv)

	g.Go(func() error { return svc.notifier.Run(gctx) })
	g.Go(func() error { return svc.registry.Run(gctx) })
	g.Go(func() error { return stores.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })

	err = g.Wait()

	a.drainPreferences(stores)

	if err != nil {
		return fmt.Errorf("api mode: %w", err)
	}

	return nil
}

// RunSync keeps one pinned coordinator per watched entity. Only the instance
// holding the leader advisory lock runs them; the others wait.
func (a *App) RunSync(ctx context.Context) error {
	a.logger.Info().Str(logFieldMode, "sync").Msg("Starting sync mode")

	sync := a.cfg.SyncCfg()
	if len(sync.WatchEntities) == 0 {
		return fmt.Errorf("sync mode needs WATCH_ENTITIES: %w", coreerrors.ErrInvalidInput)
	}

	lock, err := a.acquireLeadership(ctx, sync.Interval)
	if err != nil {
		return err
	}

	defer func() {
		//nolint:contextcheck // release must run after ctx is canceled
		if err := lock.Release(context.Background()); err != nil {
			a.logger.Warn().Err(err).Msg("release sync leader lock failed")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	svc := a.newServices(gctx)
	srv := observability.NewServer(a.database, a.cfg.HTTPPort, a.logger)
	svc.addChecks(srv)

	g.Go(func() error { return svc.notifier.Run(gctx) })
	g.Go(func() error { return svc.registry.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })

	for _, entityID := range sync.WatchEntities {
		coord, err := svc.registry.Pin(metricsync.Params{
			EntityID:  entityID,
			Platforms: platforms(sync.Platforms),
			Days:      sync.DefaultDays,
		})
		if err != nil {
			a.logger.Error().Err(err).Str(logFieldEntity, entityID).Msg("pin sync coordinator failed")

			continue
		}

		g.Go(func() error {
			a.logCycles(gctx, entityID, coord)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("sync mode: %w", err)
	}

	return nil
}

// RunReport resolves one report and writes it as indented JSON to out.
func (a *App) RunReport(ctx context.Context, artist, weekEnd string, out io.Writer) error {
	q, err := report.NewQuery(artist, weekEnd)
	if err != nil {
		return fmt.Errorf("report query: %w", err)
	}

	resolver, err := a.newResolver()
	if err != nil {
		return err
	}

	rep := resolver.ResolveQuery(ctx, q)
	if rep == nil {
		return fmt.Errorf("%s: %w", q.Term, coreerrors.ErrReportNotFound)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if _, err := fmt.Fprintln(out, string(data)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// RunMigrate applies pending migrations.
func (a *App) RunMigrate(ctx context.Context) error {
	a.logger.Info().Str(logFieldMode, "migrate").Msg("Running migrations")

	if err := a.database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

func (a *App) newServices(ctx context.Context) services {
	sync := a.cfg.SyncCfg()
	notifier := db.NewNotifier(a.database.Pool, sync.ChangeChannel, a.logger)
	breaker := a.breaker()

	var source ports.MetricsRepository = a.database
	if breaker != nil {
		source = breaker
	}

	registry := metricsync.NewRegistry(ctx, source, notifier, metricsync.RegistryConfig{
		Coordinator: metricsync.Config{
			Interval:     sync.Interval,
			ChangeTable:  sync.ChangeTable,
			FetchTimeout: sync.FetchTimeout,
			Logger:       a.logger,
		},
		IdleTTL: sync.IdleTTL,
	})

	return services{notifier: notifier, registry: registry, breaker: breaker}
}

// addChecks fails readiness while the metrics breaker is open.
func (s services) addChecks(srv *observability.Server) {
	if s.breaker != nil {
		srv.AddCheck("metrics breaker", s.breaker.Ready)
	}
}

// breaker wraps the database in a circuit breaker, or returns nil when disabled.
func (a *App) breaker() *metricsync.BreakerSource {
	bc := a.cfg.BreakerCfg()
	if !bc.Enabled {
		return nil
	}

	cfg := metricsync.DefaultBreakerConfig()
	cfg.MaxRequests = bc.MaxRequests
	cfg.Interval = bc.Interval
	cfg.Timeout = bc.Timeout
	cfg.MinRequests = bc.MinRequests
	cfg.FailureRatio = bc.FailureRatio

	return metricsync.NewBreakerSource(a.database, cfg, a.logger)
}

func (a *App) newResolver() (*report.Resolver, error) {
	var opts []report.Option

	if path := a.cfg.ReportCfg().FallbackPath; path != "" {
		fallback, err := report.LoadFallback(path)
		if err != nil {
			return nil, fmt.Errorf("load fallback report: %w", err)
		}

		opts = append(opts, report.WithFallback(fallback))
	}

	return report.NewResolver(a.database, a.logger, opts...), nil
}

func (a *App) acquireLeadership(ctx context.Context, retry time.Duration) (*db.AdvisoryLock, error) {
	for {
		lock, err := a.database.TryAcquireAdvisoryLock(ctx, db.SyncLeaderLockID)
		if err != nil {
			a.logger.Warn().Err(err).Msg("sync leader lock failed")
		}

		if lock != nil {
			a.logger.Info().Msg("acquired sync leader lock")

			return lock, nil
		}

		if err == nil {
			a.logger.Info().Msg(msgLeaderWaiting)
		}

		if err := worker.Wait(ctx, retry); err != nil {
			return nil, err
		}
	}
}

func (a *App) logCycles(ctx context.Context, entityID string, coord *metricsync.Coordinator) {
	updates, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}

			evt := a.logger.Debug()
			if snap.LastError != "" {
				evt = a.logger.Warn().Str("last_error", snap.LastError)
			}

			evt.Str(logFieldEntity, entityID).
				Str("state", string(snap.State)).
				Uint64("cycles", snap.Cycles).
				Int("platforms", len(snap.Metrics)).
				Msg("metrics synced")
		}
	}
}

// drainPreferences waits for queued preference writes, bounded by SHUTDOWN_TIMEOUT.
func (a *App) drainPreferences(stores *preferences.Registry) {
	done := make(chan struct{})

	go func() {
		stores.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.cfg.ShutdownTimeout):
		a.logger.Warn().Dur("timeout", a.cfg.ShutdownTimeout).Msg("preference writes still pending at shutdown")
	}
}

func platforms(names []string) []domain.Platform {
	out := make([]domain.Platform, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Platform(n))
	}

	return out
}
