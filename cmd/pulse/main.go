package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/app"
	"github.com/lueurxax/artist-pulse/internal/platform/config"
	db "github.com/lueurxax/artist-pulse/internal/storage"
)

func main() {
	mode := flag.String("mode", "", "Service mode (api, sync, report, migrate)")
	artist := flag.String("artist", "", "Artist slug, id or name (for report mode)")
	week := flag.String("week", "", "Week end date, latest when empty (for report mode)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.DatabaseCfg()
	poolOpts := db.PoolOptions{
		MaxConns:          dbCfg.MaxConnections,
		MinConns:          dbCfg.MinConnections,
		MaxConnIdleTime:   dbCfg.MaxConnIdleTime,
		MaxConnLifetime:   dbCfg.MaxConnLifetime,
		HealthCheckPeriod: dbCfg.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, dbCfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	application := app.New(cfg, database, &logger)

	if *mode == "api" || *mode == "sync" {
		if err := database.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	if err := runMode(ctx, application, *mode, *artist, *week); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == config.EnvLocal {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}

func runMode(ctx context.Context, application *app.App, mode, artist, week string) error {
	switch mode {
	case "api":
		return application.RunAPI(ctx)
	case "sync":
		return application.RunSync(ctx)
	case "report":
		return application.RunReport(ctx, artist, week, os.Stdout)
	case "migrate":
		return application.RunMigrate(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[api|sync|report|migrate] [--artist=<slug> --week=<YYYY-MM-DD>]", os.Args[0])

		return nil
	}
}
