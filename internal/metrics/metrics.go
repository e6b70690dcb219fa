// Package metrics exposes Prometheus collectors for archive refreshes and lookups.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	OutcomeArchived = "archived"
	OutcomeExisting = "already_archived"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

var (
	refreshTotal               *prometheus.CounterVec
	artifactsWrittenTotal      *prometheus.CounterVec
	artifactBytesTotal         *prometheus.CounterVec
	unclassifiedBlobsTotal     *prometheus.CounterVec
	lookupsTotal               *prometheus.CounterVec
	captureDurationSeconds     *prometheus.HistogramVec
	captureThrottleSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlearchiver_refresh_total",
				Help: "Per-domain refresh attempts, labeled by outcome.",
			},
			[]string{"domain", "outcome"},
		)

		artifactsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlearchiver_artifacts_written_total",
				Help: "Artifacts written to the archive, labeled by domain and kind.",
			},
			[]string{"domain", "kind"},
		)

		artifactBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlearchiver_artifact_bytes_total",
				Help: "Uncompressed bytes of archived artifacts, labeled by domain.",
			},
			[]string{"domain"},
		)

		unclassifiedBlobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlearchiver_unclassified_blobs_total",
				Help: "Captured blobs no classifier rule matched, labeled by domain.",
			},
			[]string{"domain"},
		)

		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlearchiver_lookups_total",
				Help: "Source lookups, labeled by mode (line, stack, scan).",
			},
			[]string{"mode"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundlearchiver_capture_duration_seconds",
				Help:    "Page capture latency, labeled by variant.",
				Buckets: []float64{1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"variant"},
		)

		captureThrottleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundlearchiver_capture_throttle_seconds",
				Help:    "Delay introduced by the per-host capture rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveRefresh counts one per-domain refresh outcome.
func ObserveRefresh(domain, outcome string) {
	Init()
	refreshTotal.WithLabelValues(domain, outcome).Inc()
}

// ObserveArtifact counts one written artifact and its size.
func ObserveArtifact(domain, kind string, size int) {
	Init()
	artifactsWrittenTotal.WithLabelValues(domain, kind).Inc()
	if size > 0 {
		artifactBytesTotal.WithLabelValues(domain).Add(float64(size))
	}
}

// ObserveUnclassified counts blobs the classifier could not place.
func ObserveUnclassified(domain string, n int) {
	Init()
	if n > 0 {
		unclassifiedBlobsTotal.WithLabelValues(domain).Add(float64(n))
	}
}

// ObserveLookup counts one lookup.
func ObserveLookup(mode string) {
	Init()
	lookupsTotal.WithLabelValues(mode).Inc()
}

// ObserveCapture records how long one page capture took.
func ObserveCapture(variant string, duration time.Duration) {
	Init()
	captureDurationSeconds.WithLabelValues(variant).Observe(duration.Seconds())
}

// ObserveThrottle records how long a capture waited for its host's rate limit.
func ObserveThrottle(host string, delay time.Duration) {
	Init()
	captureThrottleSeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
