package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sync_triggers_total",
		Help: "Sync coordinator triggers by reason",
	}, []string{"reason"})

	SyncCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sync_coalesced_total",
		Help: "Triggers dropped because a cycle was already in flight",
	}, []string{"reason"})

	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sync_cycles_total",
		Help: "Completed sync cycles by outcome (ok, error, discarded)",
	}, []string{"result"})

	SyncCycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sync_cycle_duration_seconds",
		Help:    "Duration of a full sync cycle fetch",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	SyncFreshnessAgeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sync_freshness_age_seconds",
		Help:    "Age of the newest snapshot when a cycle commits",
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 21600, 43200, 86400, 172800},
	})

	SyncActiveCoordinators = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_sync_active_coordinators",
		Help: "Number of running sync coordinators",
	})

	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_change_events_total",
		Help: "Change notifications received from the store",
	}, []string{"table"})

	ChangeListenerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_change_listener_reconnects_total",
		Help: "Reconnect attempts of the change listener",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulse_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	CircuitBreakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_circuit_breaker_requests_total",
		Help: "Requests through the circuit breaker by result",
	}, []string{"name", "result"})

	ReportResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_report_resolutions_total",
		Help: "Resolved reports by the generation that produced them (none when exhausted)",
	}, []string{"generation"})

	ReportGenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_report_generation_errors_total",
		Help: "Errors swallowed while probing a report generation",
	}, []string{"generation"})

	ReportSectionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_report_sections_skipped_total",
		Help: "Report sections left out of the canonical report",
	}, []string{"reason"})

	PreferenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_preference_writes_total",
		Help: "Hidden-section preference upserts by status",
	}, []string{"status"})
)
