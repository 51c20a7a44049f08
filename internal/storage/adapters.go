package db

import "github.com/lueurxax/artist-pulse/internal/core/ports"

var (
	_ ports.MetricsRepository    = (*DB)(nil)
	_ ports.ReportRepository     = (*DB)(nil)
	_ ports.PreferenceRepository = (*DB)(nil)
	_ ports.ChangeFeed           = (*Notifier)(nil)
)
