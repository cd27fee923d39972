// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	EntriesByState     *prometheus.GaugeVec
	StateTransitions   *prometheus.CounterVec
	EntryErrors        prometheus.Counter

	// Consensus metrics
	EvaluationsTotal  *prometheus.CounterVec
	VotesCast         *prometheus.CounterVec
	VoterAbstentions  *prometheus.CounterVec
	EvaluationLatency prometheus.Histogram

	// Order metrics
	OrdersSubmitted  *prometheus.CounterVec
	DuplicateOrders  prometheus.Counter
	OrderRetries     prometheus.Counter
	OpenPositions    prometheus.Gauge

	// Breaker and rate limiter metrics
	BreakerState        *prometheus.GaugeVec
	BreakerTrips        prometheus.Counter
	ThrottledCalls      prometheus.Counter
	LimiterAvailable    prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "consensus_trader"
	}

	return &Metrics{
		// Pipeline metrics
		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cycles_total",
			Help:      "Total number of pipeline cycles run",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cycle_duration_seconds",
			Help:      "Pipeline cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		EntriesByState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "entries",
			Help:      "Number of tracked entries by state",
		}, []string{"state"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions by from/to state",
		}, []string{"from", "to"}),
		EntryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "entry_errors_total",
			Help:      "Total number of per-entry handler errors",
		}),

		// Consensus metrics
		EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "evaluations_total",
			Help:      "Total number of consensus evaluations by outcome",
		}, []string{"outcome"}),
		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast by persona and action",
		}, []string{"persona", "action"}),
		VoterAbstentions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "voter_abstentions_total",
			Help:      "Total number of synthesized abstentions by persona",
		}, []string{"persona"}),
		EvaluationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "evaluation_latency_seconds",
			Help:      "Consensus evaluation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Order metrics
		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_submitted_total",
			Help:      "Total number of orders submitted by side and status",
		}, []string{"side", "status"}),
		DuplicateOrders: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duplicate_orders_total",
			Help:      "Total number of order submissions rejected as duplicates",
		}),
		OrderRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "order_retries_total",
			Help:      "Total number of order submission retries",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),

		// Breaker and rate limiter metrics
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total number of breaker trips to OPEN",
		}),
		ThrottledCalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "throttled_calls_total",
			Help:      "Total number of outbound calls denied by the rate limiter",
		}),
		LimiterAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "available_slots",
			Help:      "Rate limiter slots currently available",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful pipeline cycle",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records one completed pipeline cycle.
func RecordCycle(durationSeconds float64) {
	DefaultMetrics.CyclesTotal.Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	DefaultMetrics.LastSuccessfulCycle.SetToCurrentTime()
}

// RecordTransition records a state transition.
func RecordTransition(from, to string) {
	DefaultMetrics.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordVote records a cast vote, counting abstentions separately.
func RecordVote(persona, action string) {
	DefaultMetrics.VotesCast.WithLabelValues(persona, action).Inc()
	if action == "ABSTAIN" {
		DefaultMetrics.VoterAbstentions.WithLabelValues(persona).Inc()
	}
}

// RecordEvaluation records a consensus evaluation outcome.
func RecordEvaluation(passed bool, durationSeconds float64) {
	outcome := "rejected"
	if passed {
		outcome = "approved"
	}
	DefaultMetrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.EvaluationLatency.Observe(durationSeconds)
}

// RecordOrder records an order submission outcome.
func RecordOrder(side, status string) {
	DefaultMetrics.OrdersSubmitted.WithLabelValues(side, status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateBreakerState sets the breaker state gauges so exactly one state
// reads 1.
func UpdateBreakerState(state string) {
	for _, s := range []string{"CLOSED", "OPEN", "HALF_OPEN"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		DefaultMetrics.BreakerState.WithLabelValues(s).Set(v)
	}
}
