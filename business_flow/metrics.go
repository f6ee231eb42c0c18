package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/amirphl/Kiriban/business_flow")

var (
	// Visits partitioned by issuance outcome
	visitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiriban_visits_total",
			Help: "Total number of recorded visits",
		},
		[]string{"outcome"},
	)

	// Issuance attempts that reached the external issuer
	issuanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiriban_issuance_total",
			Help: "Total number of external issuance calls by result",
		},
		[]string{"result"},
	)

	issuanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiriban_issuance_duration_seconds",
			Help:    "Latency of external issuance calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// Asset writes that failed after a token was issued
	assetPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiriban_asset_persist_failures_total",
			Help: "Total number of generated assets that could not be stored",
		},
	)
)
