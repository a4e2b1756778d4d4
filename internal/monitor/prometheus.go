package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exported by the pipeline.
type Metrics struct {
	ArtifactsProcessed *prometheus.CounterVec
	ArtifactsSkipped   prometheus.Counter
	ModelCalls         prometheus.Counter
	CacheHits          prometheus.Counter
	RetryAttempts      *prometheus.CounterVec
	TranscribeDuration prometheus.Histogram
	ClassifyDuration   prometheus.Histogram
	PublishDuration    prometheus.Histogram
	ChunksTranscribed  prometheus.Counter
	ChunksFailed       prometheus.Counter
}

var defaultMetrics *Metrics

// Init registers the global metrics. Call once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicevault"
	}

	m := &Metrics{
		ArtifactsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_processed_total",
				Help:      "Artifacts reaching a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		ArtifactsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_skipped_total",
				Help:      "Artifacts skipped because their fingerprint is ledgered",
			},
		),
		ModelCalls: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_calls_total",
				Help:      "Network calls made to the language-model service",
			},
		),
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Gateway requests served from the response cache",
			},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Retry attempts, by operation",
			},
			[]string{"operation"},
		),
		TranscribeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transcribe_duration_seconds",
				Help:      "Time to produce one transcript",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		ClassifyDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "classify_duration_seconds",
				Help:      "Time to classify one transcript",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		PublishDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Time to publish one artifact's results",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		ChunksTranscribed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_transcribed_total",
				Help:      "Audio chunks transcribed for long media",
			},
		),
		ChunksFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_failed_total",
				Help:      "Audio chunks that exhausted their retries",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil before Init.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus scraping. Blocks until the
// server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}
