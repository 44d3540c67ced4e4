// Package metrics records artifact cache and build API activity as Prometheus
// metrics. A CLI run is short-lived, so instead of serving /metrics the
// collected values are written to a node-exporter textfile when configured.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "runserver"

// Recorder implements ports.MetricsRecorder on a private registry
type Recorder struct {
	registry *prometheus.Registry

	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	downloadFailures *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	downloadDuration prometheus.Histogram
	apiRequests      *prometheus.CounterVec
	apiLatency       *prometheus.HistogramVec
	apiRetries       *prometheus.CounterVec
}

// NewRecorder creates a recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Artifact cache lookups served from disk",
		}, []string{"version"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Artifact cache lookups that required a download",
		}, []string{"version"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Artifacts downloaded and published to the cache",
		}, []string{"version"}),
		downloadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_failures_total",
			Help:      "Artifact downloads that failed after retries",
		}, []string{"version"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to the artifact cache",
		}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time to download and verify one artifact",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Build API requests by operation and HTTP status code",
		}, []string{"operation", "code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Build API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Build API and download retries",
		}, []string{"operation"}),
	}

	r.registry.MustRegister(
		r.cacheHits,
		r.cacheMisses,
		r.downloads,
		r.downloadFailures,
		r.downloadBytes,
		r.downloadDuration,
		r.apiRequests,
		r.apiLatency,
		r.apiRetries,
	)

	return r
}

// Registry returns the registry holding every collector
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) CacheHit(version string) {
	r.cacheHits.WithLabelValues(version).Inc()
}

func (r *Recorder) CacheMiss(version string) {
	r.cacheMisses.WithLabelValues(version).Inc()
}

func (r *Recorder) DownloadCompleted(version string, bytes int64, elapsed time.Duration) {
	r.downloads.WithLabelValues(version).Inc()
	r.downloadBytes.Add(float64(bytes))
	r.downloadDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) DownloadFailed(version string) {
	r.downloadFailures.WithLabelValues(version).Inc()
}

// APIRequest records one request. status 0 means no response was received.
func (r *Recorder) APIRequest(operation string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	r.apiRequests.WithLabelValues(operation, code).Inc()
	r.apiLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) APIRetry(operation string) {
	r.apiRetries.WithLabelValues(operation).Inc()
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically, as the textfile collector expects.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Nop discards everything
type Nop struct{}

func (Nop) CacheHit(string)                                {}
func (Nop) CacheMiss(string)                               {}
func (Nop) DownloadCompleted(string, int64, time.Duration) {}
func (Nop) DownloadFailed(string)                          {}
func (Nop) APIRequest(string, int, time.Duration)          {}
func (Nop) APIRetry(string)                                {}
