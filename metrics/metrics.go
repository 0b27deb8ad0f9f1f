package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WatcherHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchtower_watcher_processed_height",
			Help: "Last block height fully processed by a watcher",
		},
		[]string{"stream", "chain"},
	)

	WatcherHead = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchtower_watcher_head_height",
			Help: "Latest head height seen by a watcher",
		},
		[]string{"stream", "chain"},
	)

	WatcherErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_watcher_errors_total",
			Help: "Failed watcher ticks",
		},
		[]string{"stream", "chain"},
	)

	EventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_events_observed_total",
			Help: "Chain events handed to services",
		},
		[]string{"chain", "kind"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_submissions_total",
			Help: "Contract call submissions by result (success, rejected, timeout, transient)",
		},
		[]string{"chain", "call", "result"},
	)

	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_verdicts_total",
			Help: "Approval verification verdicts",
		},
		[]string{"chain", "verdict"},
	)

	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_cancellations_total",
			Help: "Cancellation attempts by outcome",
		},
		[]string{"chain", "result"},
	)

	RetryQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watchtower_retry_queue_length",
		Help: "Tasks waiting in the retry scheduler",
	})

	TaskRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_task_restarts_total",
			Help: "Supervised task restarts after a failure",
		},
		[]string{"task"},
	)

	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_alerts_total",
			Help: "Security alerts raised",
		},
		[]string{"kind"},
	)
)
