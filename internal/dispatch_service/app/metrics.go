package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "transactions_total",
			Help:      "Total transactions driven through the delivery state machine.",
		},
		[]string{"kind", "status"}, // e.g. kind="mms", status="sent"
	)

	transportSendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "transport_send_duration_seconds",
			Help:      "Duration of transport send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	compressionOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "compression_outcomes_total",
			Help:      "Outcomes of image compression passes.",
		},
		[]string{"outcome"}, // "fit", "budget_exhausted", "encode_error"
	)

	receiptsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "receipts_processed_total",
			Help:      "Delivery receipts consumed from the broker.",
		},
		[]string{"status"}, // "delivered", "delivery_failed", "orphaned", "error"
	)

	dedupRecordsRemovedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "dedup_records_removed_total",
			Help:      "Duplicate records removed by deduplication passes.",
		},
	)
)
