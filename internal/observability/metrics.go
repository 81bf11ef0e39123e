package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpp_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	WalletAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpp_wallet_api_calls_total",
			Help: "Calls to the Google Wallet Objects API",
		},
		[]string{"resource", "method", "outcome"},
	)

	WalletAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpp_wallet_api_seconds",
			Help:    "Duration of Google Wallet Objects API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "method"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpp_jobs_processed_total",
			Help: "Wallet jobs processed by kind and result",
		},
		[]string{"kind", "result"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpp_webhooks_total",
			Help: "Wallet webhook callbacks by outcome",
		},
		[]string{"outcome"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpp_outbox_lag_seconds",
			Help: "Age of the oldest job relayed in the last outbox pass",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gpp_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
