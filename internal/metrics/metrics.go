package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the outreach engine
type Metrics struct {
	// Ingestion counters
	CandidatesIngestedTotal  *prometheus.CounterVec
	CandidatesDuplicateTotal *prometheus.CounterVec
	CandidatesErroredTotal   *prometheus.CounterVec

	// Sequence counters
	TouchesSentTotal        *prometheus.CounterVec
	SendTransientFailTotal  prometheus.Counter
	SendPermanentFailTotal  prometheus.Counter
	RepliesTotal            *prometheus.CounterVec
	UnsubscribesTotal       prometheus.Counter
	AnonymizationsTotal     prometheus.Counter
	TransitionConflictTotal prometheus.Counter

	// Queue assigner counters
	QueuesCreatedTotal      prometheus.Counter
	QueuesDeletedTotal      prometheus.Counter
	AssignmentsCreatedTotal prometheus.Counter

	// Gauges
	ActiveCandidates   prometheus.Gauge
	SweepDurationSecs  prometheus.Gauge
	LastSweepTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CandidatesIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreachd_candidates_ingested_total",
				Help: "Total number of candidates accepted at upload",
			},
			[]string{"role_id"},
		),
		CandidatesDuplicateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreachd_candidates_duplicate_total",
				Help: "Total number of duplicate upload rows skipped",
			},
			[]string{"role_id"},
		),
		CandidatesErroredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreachd_candidates_errored_total",
				Help: "Total number of upload rows rejected by validation",
			},
			[]string{"role_id"},
		),
		TouchesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreachd_touches_sent_total",
				Help: "Total number of outreach touches sent, by step",
			},
			[]string{"step"},
		),
		SendTransientFailTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_send_transient_failures_total",
				Help: "Total number of transient delivery failures (retried)",
			},
		),
		SendPermanentFailTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_send_permanent_failures_total",
				Help: "Total number of permanent delivery failures (candidate bounced)",
			},
		),
		RepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreachd_replies_total",
				Help: "Total number of classified inbound replies, by sentiment",
			},
			[]string{"sentiment"},
		),
		UnsubscribesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_unsubscribes_total",
				Help: "Total number of unsubscribe signals processed",
			},
		),
		AnonymizationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_anonymizations_total",
				Help: "Total number of candidates anonymized by the retention sweep",
			},
		),
		TransitionConflictTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_transition_conflicts_total",
				Help: "Total number of state transitions rejected as stale",
			},
		),
		QueuesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_linkedin_queues_created_total",
				Help: "Total number of manual outreach queues created",
			},
		),
		QueuesDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_linkedin_queues_deleted_total",
				Help: "Total number of manual outreach queues deleted",
			},
		),
		AssignmentsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreachd_queue_assignments_created_total",
				Help: "Total number of queue assignments created",
			},
		),
		ActiveCandidates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreachd_active_candidates",
				Help: "Number of candidates currently in the active sequence",
			},
		),
		SweepDurationSecs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreachd_sweep_duration_seconds",
				Help: "Duration of the last scheduler sweep",
			},
		),
		LastSweepTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreachd_last_sweep_timestamp_seconds",
				Help: "Unix time of the last completed scheduler sweep",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CandidatesIngestedTotal,
		m.CandidatesDuplicateTotal,
		m.CandidatesErroredTotal,
		m.TouchesSentTotal,
		m.SendTransientFailTotal,
		m.SendPermanentFailTotal,
		m.RepliesTotal,
		m.UnsubscribesTotal,
		m.AnonymizationsTotal,
		m.TransitionConflictTotal,
		m.QueuesCreatedTotal,
		m.QueuesDeletedTotal,
		m.AssignmentsCreatedTotal,
		m.ActiveCandidates,
		m.SweepDurationSecs,
		m.LastSweepTimestamp,
	)

	return m
}

// Registry returns the Prometheus registry for the scrape handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
