package config

import (
	"strings"
	"time"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// SyncConfig holds metric coordinator settings.
type SyncConfig struct {
	Interval      time.Duration
	DefaultDays   int
	Platforms     []string
	FetchTimeout  time.Duration
	ChangeChannel string
	ChangeTable   string
	IdleTTL       time.Duration
	SnapshotWait  time.Duration
	WatchEntities []string
}

// BreakerConfig holds circuit breaker settings for metric fetches.
type BreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// ReportConfig holds report resolution settings.
type ReportConfig struct {
	FallbackPath string
}

// DatabaseCfg returns the database configuration.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// SyncCfg returns the metric sync configuration with list values trimmed
// and de-duplicated.
func (c *Config) SyncCfg() SyncConfig {
	return SyncConfig{
		Interval:      c.SyncInterval,
		DefaultDays:   c.SyncDefaultDays,
		Platforms:     splitList(strings.ToLower(c.SyncPlatforms)),
		FetchTimeout:  c.SyncFetchTimeout,
		ChangeChannel: c.ChangeChannel,
		ChangeTable:   c.ChangeTable,
		IdleTTL:       c.CoordinatorIdleTTL,
		SnapshotWait:  c.SnapshotWait,
		WatchEntities: splitList(strings.Join(c.WatchEntities, ",")),
	}
}

// BreakerCfg returns the circuit breaker configuration.
func (c *Config) BreakerCfg() BreakerConfig {
	return BreakerConfig{
		Enabled:      c.BreakerEnabled,
		MaxRequests:  c.BreakerMaxRequests,
		Interval:     c.BreakerInterval,
		Timeout:      c.BreakerTimeout,
		MinRequests:  c.BreakerMinRequests,
		FailureRatio: c.BreakerFailureRatio,
	}
}

// PreferencesConfig holds preference cache settings.
type PreferencesConfig struct {
	IdleTTL time.Duration
}

// PreferencesCfg returns the preference cache configuration.
func (c *Config) PreferencesCfg() PreferencesConfig {
	return PreferencesConfig{IdleTTL: c.PreferenceIdleTTL}
}

// ReportCfg returns the report resolution configuration.
func (c *Config) ReportCfg() ReportConfig {
	return ReportConfig{
		FallbackPath: strings.TrimSpace(c.ReportFallbackPath),
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if _, ok := seen[p]; ok {
			continue
		}

		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out
}
