// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk outcomes recorded by ObserveChunk.
const (
	ChunkStored = "stored"
	ChunkFailed = "failed"
	ChunkDryRun = "dry_run"
)

var (
	itemsEnqueuedTotal         *prometheus.CounterVec
	producersFinishedTotal     *prometheus.CounterVec
	chunksTotal                *prometheus.CounterVec
	recordsStreamedTotal       prometheus.Counter
	recordsStoredTotal         prometheus.Counter
	chunkStreamDuration        prometheus.Histogram
	drainPollTimeoutsTotal     prometheus.Counter
	queueDepth                 prometheus.Gauge
	activeProducers            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_items_enqueued_total",
				Help: "Total number of scraped items pushed into the record queue, labeled by source.",
			},
			[]string{"source"},
		)

		producersFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_producers_finished_total",
				Help: "Total number of producer workers that finished, labeled by result.",
			},
			[]string{"result"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_chunks_total",
				Help: "Total number of chunks handled by the consumer, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		recordsStreamedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_records_streamed_total",
				Help: "Total number of records sent on store streams.",
			},
		)

		recordsStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_records_stored_total",
				Help: "Total number of records the storage service reported as stored.",
			},
		)

		chunkStreamDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_chunk_stream_duration_seconds",
				Help:    "Histogram of store stream latencies per chunk.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		drainPollTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_drain_poll_timeouts_total",
				Help: "Total number of consumer polls that timed out on an empty queue.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_queue_depth",
				Help: "Number of items waiting in the record queue.",
			},
		)

		activeProducers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_producers",
				Help: "Number of producer workers currently running a scraping session.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEnqueued counts one item pushed by the given source.
func ObserveEnqueued(source string) {
	itemsEnqueuedTotal.WithLabelValues(source).Inc()
}

// ObserveProducerFinished counts a finished producer; result is "success",
// "empty", or "error".
func ObserveProducerFinished(result string) {
	producersFinishedTotal.WithLabelValues(result).Inc()
}

// ObserveChunk records one chunk handled by the consumer.
func ObserveChunk(outcome string, records int, stored int64, duration time.Duration) {
	chunksTotal.WithLabelValues(outcome).Inc()
	if outcome == ChunkDryRun {
		return
	}
	recordsStreamedTotal.Add(float64(records))
	if stored > 0 {
		recordsStoredTotal.Add(float64(stored))
	}
	chunkStreamDuration.Observe(duration.Seconds())
}

// ObservePollTimeout counts a consumer poll that found the queue empty.
func ObservePollTimeout() {
	drainPollTimeoutsTotal.Inc()
}

// SetQueueDepth publishes the current queue size.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncActiveProducers increments the active producers gauge.
func IncActiveProducers() {
	activeProducers.Inc()
}

// DecActiveProducers decrements the active producers gauge.
func DecActiveProducers() {
	activeProducers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
