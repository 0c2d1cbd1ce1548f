package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_orders_created_total",
		Help: "Total number of point purchase orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_orders_completed_total",
		Help: "Total number of orders completed with points credited",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_orders_expired_total",
		Help: "Total number of orders expired before payment",
	})

	WebhooksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhooks_received_total",
		Help: "Total number of inbound payment webhooks",
	})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_rejected_total",
		Help: "Total number of rejected payment webhooks",
	}, []string{"reason"})

	WebhooksDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhooks_duplicate_total",
		Help: "Total number of webhooks detected as duplicates",
	})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_webhook_processing_latency_seconds",
		Help:    "Latency of webhook reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	PointsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_credited_total",
		Help: "Total number of pending-to-available conversions",
	})

	CreditLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "points_credit_latency_seconds",
		Help:    "Latency of the ledger commit unit",
		Buckets: prometheus.DefBuckets,
	})

	PollReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_poll_reconciliations_total",
		Help: "Total number of poll reconciliation passes",
	}, []string{"outcome"})

	GatewayCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_call_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayCallsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_calls_failed_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
