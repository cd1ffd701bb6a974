// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Chain access metrics
	RPCCallLatency   *prometheus.HistogramVec
	BatchSize        prometheus.Histogram
	BatchFailures    prometheus.Counter
	DecodeFailures   *prometheus.CounterVec
	HeadsReceived    prometheus.Counter
	LatestBlockTime  prometheus.Gauge
	PriceFetchErrors *prometheus.CounterVec

	// Cycle metrics
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	CandidatesStage *prometheus.GaugeVec
	BestTip         prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "autopay_tips"
	}

	return &Metrics{
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Ethereum JSON-RPC call latency in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "multicall",
			Name:      "batch_size",
			Help:      "Number of calls per multicall round trip",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		BatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "multicall",
			Name:      "batch_failures_total",
			Help:      "Total number of multicall round trips that failed as a whole",
		}),
		DecodeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "multicall",
			Name:      "decode_failures_total",
			Help:      "Total number of call results that could not be decoded, by method",
		}, []string{"method"}),
		HeadsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "heads_received_total",
			Help:      "Total number of newHeads notifications received",
		}),
		LatestBlockTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "latest_block_timestamp",
			Help:      "Timestamp of the latest block a cycle evaluated",
		}),
		PriceFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed price lookups by source",
		}, []string{"source"}),

		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of suggestion cycles by outcome",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Suggestion cycle duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		CandidatesStage: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "candidates",
			Help:      "Candidates remaining after each pipeline stage in the last cycle",
		}, []string{"stage"}),
		BestTip: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "best_tip_tokens",
			Help:      "Tip of the last recommendation in whole tokens (18 decimals)",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful suggestion cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordBatch records one multicall round trip.
func RecordBatch(size int, err error) {
	DefaultMetrics.BatchSize.Observe(float64(size))
	if err != nil {
		DefaultMetrics.BatchFailures.Inc()
	}
}

// RecordDecodeFailure counts a call result that could not be decoded.
func RecordDecodeFailure(method string) {
	DefaultMetrics.DecodeFailures.WithLabelValues(method).Inc()
}

// RecordHead counts a received chain head.
func RecordHead() {
	DefaultMetrics.HeadsReceived.Inc()
}

// RecordPriceError counts a failed price lookup.
func RecordPriceError(source string) {
	DefaultMetrics.PriceFetchErrors.WithLabelValues(source).Inc()
}

// RecordStage records how many candidates survived a pipeline stage.
func RecordStage(stage string, count int) {
	DefaultMetrics.CandidatesStage.WithLabelValues(stage).Set(float64(count))
}

// RecordCycle records a finished suggestion cycle.
// status is one of "suggested", "empty" or "error".
func RecordCycle(status string, durationSeconds float64, blockTime uint64, bestTipTokens float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	if status == "error" {
		return
	}
	DefaultMetrics.LatestBlockTime.Set(float64(blockTime))
	DefaultMetrics.BestTip.Set(bestTipTokens)
}

// MarkCycleSuccess sets the last successful cycle gauge.
func MarkCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
