package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Plan metrics
	PlansSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_plans_submitted_total",
			Help: "Total number of plan run requests received",
		},
		[]string{"plan"},
	)

	PlansAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_plans_admitted_total",
			Help: "Total number of plans admitted",
		},
		[]string{"plan"},
	)

	PlansDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_plans_denied_total",
			Help: "Total number of plan run requests denied",
		},
		[]string{"plan", "reason"},
	)

	PlansPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmaster_plans_purged_total",
			Help: "Total number of finished plans purged from the tracker",
		},
	)

	LivePlans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobmaster_live_plans",
			Help: "Current number of live plan coordinators",
		},
	)

	PlanRollUpTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_plan_rollup_transitions_total",
			Help: "Total number of plan roll-up state transitions, by target state",
		},
		[]string{"to"},
	)

	// Command metrics
	CommandsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_commands_enqueued_total",
			Help: "Total number of commands enqueued for workers",
		},
		[]string{"kind"},
	)

	CommandsDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_commands_drained_total",
			Help: "Total number of commands drained by worker heartbeats",
		},
		[]string{"kind"},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobmaster_active_workers",
			Help: "Current number of registered workers",
		},
	)

	WorkersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmaster_workers_registered_total",
			Help: "Total number of worker registrations",
		},
	)

	WorkersEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_workers_evicted_total",
			Help: "Total number of workers evicted, by reason",
		},
		[]string{"reason"},
	)

	WorkersLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmaster_workers_lost_total",
			Help: "Total number of workers declared lost by the periodic sweep",
		},
	)

	HeartbeatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobmaster_heartbeat_latency_seconds",
			Help:    "Time between successive heartbeats from the same worker",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// HTTP metrics (kept in the teacher's shape: one duration histogram and
	// one request counter, both labeled by method/path/status).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobmaster_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket / live-feed metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobmaster_websocket_connections",
			Help: "Current number of connected WebSocket dashboards",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmaster_events_published_total",
			Help: "Total number of lifecycle events published to the live-status feed",
		},
		[]string{"type"},
	)
)

// RecordPlanSubmission records a run() call for plan.
func RecordPlanSubmission(plan string) {
	PlansSubmitted.WithLabelValues(plan).Inc()
}

// RecordPlanAdmission records a successful admission and updates the live
// gauge.
func RecordPlanAdmission(plan string, liveCount int) {
	PlansAdmitted.WithLabelValues(plan).Inc()
	LivePlans.Set(float64(liveCount))
}

// RecordPlanDenial records a denied admission.
func RecordPlanDenial(plan, reason string) {
	PlansDenied.WithLabelValues(plan, reason).Inc()
}

// RecordPlanPurge records one purged plan and updates the live gauge.
func RecordPlanPurge(liveCount int) {
	PlansPurged.Inc()
	LivePlans.Set(float64(liveCount))
}

// RecordRollUpTransition records a roll-up reaching state `to`.
func RecordRollUpTransition(to string) {
	PlanRollUpTransitions.WithLabelValues(to).Inc()
}

// RecordCommandEnqueued records one command queued for a worker.
func RecordCommandEnqueued(kind string) {
	CommandsEnqueued.WithLabelValues(kind).Inc()
}

// RecordCommandDrained records one command delivered via heartbeat.
func RecordCommandDrained(kind string) {
	CommandsDrained.WithLabelValues(kind).Inc()
}

// SetActiveWorkers sets the registered-worker gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// RecordWorkerRegistered records one successful registration.
func RecordWorkerRegistered() {
	WorkersRegistered.Inc()
}

// RecordWorkerEvicted records one eviction, by reason.
func RecordWorkerEvicted(reason string) {
	WorkersEvicted.WithLabelValues(reason).Inc()
}

// RecordWorkerLost records one worker declared lost by the sweep.
func RecordWorkerLost() {
	WorkersLost.Inc()
}

// RecordHeartbeatLatency records the observed gap between two heartbeats
// from the same worker, in seconds.
func RecordHeartbeatLatency(seconds float64) {
	HeartbeatLatency.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request's duration and count.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the connected-dashboard gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordEventPublished records one event published to the live feed.
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}
