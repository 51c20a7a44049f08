package db

import (
	"time"
)

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 25
	defaultMinConns          int32         = 5
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// Change feed constants
const (
	// DefaultChangeChannel is the NOTIFY channel written by the snapshot triggers.
	DefaultChangeChannel = "table_changes"
	// reconnectInterval paces LISTEN reconnects after a dropped connection.
	reconnectInterval = 2 * time.Second
)

// Advisory lock ids
const (
	// SyncLeaderLockID guards the headless sync worker so one instance polls per database.
	SyncLeaderLockID int64 = 2000
)
