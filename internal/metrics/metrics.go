// Package metrics provides the centralized Prometheus metrics registry
// for the timing pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RawReadsAppendedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "raw_reads_appended_total",
		Help:      "Total number of raw reads appended to the store",
	})
	ReadsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "reads_processed_total",
		Help:      "Total number of raw reads consumed by the pipeline",
	})
	CrossingsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "crossings_created_total",
		Help:      "Total number of normalized crossings created",
	})
	EchoesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "echoes_dropped_total",
		Help:      "Total number of reads suppressed by the dedup window",
	})
	ManualEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "manual_entries_total",
		Help:      "Total number of operator-supplied crossings",
	})
	AnomaliesDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "anomalies_detected_total",
		Help:      "Total number of timing anomalies flagged for review",
	})
	RankRecomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "rank_recomputes_total",
		Help:      "Total number of per-checkpoint rank recomputations",
	})
	GatewayObservationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "gateway_observations_total",
		Help:      "Total number of observations accepted from reader gateways",
	})
	GatewayRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "gateway_rejected_total",
		Help:      "Total number of malformed or rate-limited gateway messages",
	})
	LeaderboardPushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finish_line",
		Name:      "leaderboard_pushes_total",
		Help:      "Total number of leaderboard snapshots pushed to webhooks",
	})
)

// Gauge metrics
var (
	PendingReads = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "finish_line",
		Name:      "pending_reads",
		Help:      "Raw reads awaiting processing per event",
	}, []string{"event_id"})
	WatermarkAgeSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "finish_line",
		Name:      "watermark_age_seconds",
		Help:      "Age of the per-event processing watermark",
	}, []string{"event_id"})
	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "finish_line",
		Name:      "gateway_connections",
		Help:      "Currently connected reader gateways",
	})
	PendingRankScopes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "finish_line",
		Name:      "pending_rank_scopes",
		Help:      "Checkpoints awaiting debounced rank recomputation",
	})
)

// Histogram metrics
var (
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finish_line",
		Name:      "batch_duration_seconds",
		Help:      "Duration of one pipeline batch commit in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	RankRecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finish_line",
		Name:      "rank_recompute_duration_seconds",
		Help:      "Duration of one checkpoint rank recomputation in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	LeaderboardPushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finish_line",
		Name:      "leaderboard_push_duration_seconds",
		Help:      "Duration of one leaderboard webhook push in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(RawReadsAppendedTotal)
		registry.MustRegister(ReadsProcessedTotal)
		registry.MustRegister(CrossingsCreatedTotal)
		registry.MustRegister(EchoesDroppedTotal)
		registry.MustRegister(ManualEntriesTotal)
		registry.MustRegister(AnomaliesDetectedTotal)
		registry.MustRegister(RankRecomputesTotal)
		registry.MustRegister(GatewayObservationsTotal)
		registry.MustRegister(GatewayRejectedTotal)
		registry.MustRegister(LeaderboardPushesTotal)

		// Register gauge metrics
		registry.MustRegister(PendingReads)
		registry.MustRegister(WatermarkAgeSeconds)
		registry.MustRegister(GatewayConnections)
		registry.MustRegister(PendingRankScopes)

		// Register histogram metrics
		registry.MustRegister(BatchDuration)
		registry.MustRegister(RankRecomputeDuration)
		registry.MustRegister(LeaderboardPushDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordObservation records an accepted gateway observation.
func RecordObservation() {
	GatewayObservationsTotal.Inc()
	RawReadsAppendedTotal.Inc()
}

// RecordGatewayRejection records a dropped gateway message.
func RecordGatewayRejection() {
	GatewayRejectedTotal.Inc()
}

// RecordBatch records the outcome of one pipeline batch.
func RecordBatch(processed, crossings, echoes int, durationSeconds float64) {
	ReadsProcessedTotal.Add(float64(processed))
	CrossingsCreatedTotal.Add(float64(crossings))
	EchoesDroppedTotal.Add(float64(echoes))
	BatchDuration.Observe(durationSeconds)
}

// RecordManualEntry records an operator-supplied crossing.
func RecordManualEntry() {
	ManualEntriesTotal.Inc()
}

// RecordAnomalies records newly flagged timing anomalies.
func RecordAnomalies(count int) {
	AnomaliesDetectedTotal.Add(float64(count))
}

// RecordRankRecompute records one checkpoint rank recomputation.
func RecordRankRecompute(durationSeconds float64) {
	RankRecomputesTotal.Inc()
	RankRecomputeDuration.Observe(durationSeconds)
}

// RecordLeaderboardPush records one webhook snapshot push.
func RecordLeaderboardPush(durationSeconds float64) {
	LeaderboardPushesTotal.Inc()
	LeaderboardPushDuration.Observe(durationSeconds)
}

// UpdatePendingReads updates the per-event backlog gauge.
func UpdatePendingReads(eventID string, count float64) {
	PendingReads.WithLabelValues(eventID).Set(count)
}

// UpdateWatermarkAge updates the per-event watermark age gauge.
func UpdateWatermarkAge(eventID string, seconds float64) {
	WatermarkAgeSeconds.WithLabelValues(eventID).Set(seconds)
}

// UpdatePendingRankScopes updates the debouncer backlog gauge.
func UpdatePendingRankScopes(count float64) {
	PendingRankScopes.Set(count)
}
