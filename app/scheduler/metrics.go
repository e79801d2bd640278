package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rows each poller picked up, partitioned by poller name
	pollerRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcastd_poller_rows_total",
			Help: "Total rows claimed by the engine pollers",
		},
		[]string{"poller"},
	)

	// Task outcomes after the limiter ran them, partitioned by poller and result
	pollerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcastd_poller_tasks_total",
			Help: "Total tasks completed by the engine pollers",
		},
		[]string{"poller", "result"},
	)

	// Queue entries the reclaim sweep returned to pending
	reclaimedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcastd_reclaimed_entries_total",
			Help: "Total processing queue entries returned to pending by the reclaim sweep",
		},
	)

	// Tasks currently holding a limiter slot
	limiterInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcastd_limiter_in_flight",
			Help: "Number of tasks currently holding a limiter slot",
		},
	)
)

func countTask(poller string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	pollerTasksTotal.WithLabelValues(poller, result).Inc()
}
