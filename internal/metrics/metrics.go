package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GPS fixes seen by live engines, labelled accepted, low_accuracy, gap, ignored.
	FixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtracker_fixes_total",
			Help: "GPS fixes processed by live run engines",
		},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runtracker_active_sessions",
			Help: "Live run sessions currently starting, running or paused",
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtracker_state_transitions_total",
			Help: "Run session state transitions",
		},
		[]string{"from", "to"},
	)

	SplitCues = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runtracker_split_cues_total",
			Help: "Kilometer split voice cues fired",
		},
	)

	// Finished run submissions, labelled ok, failed, rejected (breaker open).
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtracker_submissions_total",
			Help: "Finished run submissions to the run store",
		},
		[]string{"result"},
	)

	PendingSubmissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runtracker_pending_submissions",
			Help: "Finished runs waiting for a successful submission",
		},
	)

	// 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runtracker_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	WeightCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtracker_weight_cache_lookups_total",
			Help: "Body weight cache lookups",
		},
		[]string{"result"},
	)
)
