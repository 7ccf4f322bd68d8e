package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustfl_rounds_total",
			Help: "Total number of completed training rounds",
		},
		[]string{"session", "mode"},
	)

	aggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustfl_aggregations_total",
			Help: "Total number of aggregations by strategy",
		},
		[]string{"session", "strategy"},
	)

	aggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustfl_aggregation_duration_seconds",
			Help:    "Time spent combining one round of updates",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"session", "strategy"},
	)

	protocolViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustfl_protocol_violations_total",
			Help: "Messages dropped because they were not expected in the current state",
		},
		[]string{"session", "action"},
	)

	workerReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustfl_worker_replies_total",
			Help: "Accepted worker replies by action",
		},
		[]string{"session", "action"},
	)

	workerMetrics = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustfl_worker_update_metric",
			Help: "Last value of each metric a worker attached to its update",
		},
		[]string{"session", "worker", "metric"},
	)

	currentIteration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustfl_iteration",
			Help: "Number of completed aggregations in the session",
		},
		[]string{"session"},
	)
)
