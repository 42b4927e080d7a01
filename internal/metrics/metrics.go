package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_messages_total",
			Help: "BGP messages sent/received, by neighbor and type.",
		},
		[]string{"neighbor", "direction", "type"},
	)

	UpdateWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpd_update_write_duration_seconds",
			Help:    "Time spent packing and writing an UPDATE batch to the wire.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"neighbor"},
	)

	RIBRoutesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_rib_routes",
			Help: "Routes currently held in the RIB, by neighbor and direction.",
		},
		[]string{"neighbor", "direction", "family"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_parse_errors_total",
			Help: "Parse failures by neighbor and stage.",
		},
		[]string{"neighbor", "stage", "reason"},
	)

	EORSeen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_eor_seen",
			Help: "End-of-RIB received (0/1), by neighbor and family.",
		},
		[]string{"neighbor", "family"},
	)

	FSMStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_fsm_transitions_total",
			Help: "FSM state transitions, by neighbor and resulting state.",
		},
		[]string{"neighbor", "state"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpd_update_batch_size",
			Help:    "NLRI count per outgoing UPDATE batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"neighbor"},
	)

	RoutesPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_routes_purged_total",
			Help: "Routes purged from a peer's incoming RIB (session_down, stale).",
		},
		[]string{"neighbor", "reason"},
	)

	ProcessRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_process_restarts_total",
			Help: "Helper process respawns, by process name.",
		},
		[]string{"process"},
	)

	AuditDedupConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_audit_dedup_conflicts_total",
			Help: "Audit sink dedup hits (ON CONFLICT DO NOTHING skips).",
		},
		[]string{"neighbor"},
	)

	AuditWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpd_audit_write_duration_seconds",
			Help:    "Audit sink batch write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	EventBusPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_eventbus_publish_total",
			Help: "Events published to the configured event bus topic.",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MessagesTotal,
			UpdateWriteDuration,
			RIBRoutesTotal,
			ParseErrorsTotal,
			EORSeen,
			FSMStateTransitionsTotal,
			BatchSize,
			RoutesPurgedTotal,
			ProcessRestartsTotal,
			AuditDedupConflictsTotal,
			AuditWriteDuration,
			EventBusPublishTotal,
		)
	})
}
