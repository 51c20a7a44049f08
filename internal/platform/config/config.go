package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvLocal enables the human-readable console log writer.
const EnvLocal = "local"

var (
	errInvalidSyncInterval = errors.New("SYNC_INTERVAL must be positive")
	errInvalidFailureRatio = errors.New("BREAKER_FAILURE_RATIO must be in (0, 1]")
	errInvalidPort         = errors.New("HTTP_PORT must be in 1..65535")
	errNoPlatforms         = errors.New("SYNC_PLATFORMS must name at least one platform")
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`

	// Database
	PostgresDSN         string        `env:"POSTGRES_DSN,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Metric sync
	SyncInterval       time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`
	SyncDefaultDays    int           `env:"SYNC_DEFAULT_DAYS" envDefault:"30"`
	SyncPlatforms      string        `env:"SYNC_PLATFORMS" envDefault:"spotify,apple_music,youtube,deezer,instagram,tiktok"`
	SyncFetchTimeout   time.Duration `env:"SYNC_FETCH_TIMEOUT" envDefault:"0s"`
	ChangeChannel      string        `env:"CHANGE_CHANNEL" envDefault:"table_changes"`
	ChangeTable        string        `env:"CHANGE_TABLE" envDefault:"dsp_snapshots"`
	CoordinatorIdleTTL time.Duration `env:"COORDINATOR_IDLE_TTL" envDefault:"30m"`
	SnapshotWait       time.Duration `env:"SNAPSHOT_WAIT" envDefault:"5s"`
	WatchEntities      []string      `env:"WATCH_ENTITIES" envSeparator:","`

	// Circuit breaker around metric fetches
	BreakerEnabled      bool          `env:"BREAKER_ENABLED" envDefault:"true"`
	BreakerMaxRequests  uint32        `env:"BREAKER_MAX_REQUESTS" envDefault:"3"`
	BreakerInterval     time.Duration `env:"BREAKER_INTERVAL" envDefault:"1m"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"2m"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"10"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.6"`

	// Reports
	ReportFallbackPath string `env:"REPORT_FALLBACK_PATH"`

	// Preferences
	PreferenceIdleTTL time.Duration `env:"PREFERENCE_IDLE_TTL" envDefault:"30m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyAliases(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.SyncInterval <= 0 {
		errs = append(errs, errInvalidSyncInterval)
	}

	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, errInvalidFailureRatio)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, errInvalidPort)
	}

	if len(c.SyncCfg().Platforms) == 0 {
		errs = append(errs, errNoPlatforms)
	}

	return errors.Join(errs...)
}

// IsLocal reports whether the app runs on a developer machine.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.AppEnv, EnvLocal)
}

// applyAliases reads the pre-rename variable names when the current ones are unset.
func applyAliases(cfg *Config) {
	if !hasEnv("SNAPSHOT_WAIT") {
		setDurationFromEnv("METRICS_SNAPSHOT_WAIT", &cfg.SnapshotWait)
	}

	if !hasEnv("SYNC_INTERVAL") {
		setDurationFromEnv("POLL_INTERVAL", &cfg.SyncInterval)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setDurationFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}
