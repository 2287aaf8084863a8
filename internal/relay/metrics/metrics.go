package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsReceived tracks items read from the upstream stream
	ItemsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetrelay_items_received_total",
			Help: "Total number of items received from upstream",
		},
	)

	// ItemsDropped tracks items that were not forwarded, by reason
	ItemsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_items_dropped_total",
			Help: "Total number of received items that were not forwarded",
		},
		[]string{"reason"},
	)

	// ItemsForwarded tracks items dispatched for delivery, by kind
	ItemsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_items_forwarded_total",
			Help: "Total number of items dispatched for delivery",
		},
		[]string{"kind"},
	)

	// DeliveryAttempts tracks calls to the destination, by outcome
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_delivery_attempts_total",
			Help: "Total number of delivery attempts",
		},
		[]string{"destination", "outcome"},
	)

	// DeliveryFailures tracks messages given up on
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_delivery_failures_total",
			Help: "Total number of messages that could not be delivered",
		},
		[]string{"destination", "reason"},
	)

	// DeliveryLatency tracks the duration of a full delivery sequence
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tweetrelay_delivery_latency_seconds",
			Help:    "Time from dispatch to acknowledgment or failure",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	// Reconnects tracks upstream reconnect attempts, by cause
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_reconnects_total",
			Help: "Total number of upstream reconnects",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks the number of messages waiting for a delivery worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetrelay_delivery_queue_depth",
			Help: "Messages waiting for a delivery worker",
		},
	)
)
