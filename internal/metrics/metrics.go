package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Delivery chains by final outcome",
		},
		[]string{"outcome"}, // success|exhausted|skipped|unencodable
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_attempts_total",
			Help: "Individual HTTP delivery attempts by result",
		},
		[]string{"result"}, // success|failure|breaker_open
	)

	MatchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_match_cache_total",
			Help: "Topic matcher cache lookups",
		},
		[]string{"result"}, // hit|miss|error
	)

	LedgerPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_ledger_purged_total",
			Help: "Delivery ledger rows removed by the retention job",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_jobs",
			Help: "Jobs waiting in the retry scheduler queue at the last poll",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		DeliveriesTotal,
		AttemptsTotal,
		MatchCacheTotal,
		LedgerPurgedTotal,
		QueueDepth,
	)
}
