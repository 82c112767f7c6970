// Package metrics exposes Prometheus counters for the acquisition and
// analysis pipeline. Counters are registered on the default registry; a
// long-running embedder can serve them via Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenview_downloads_total",
			Help: "Total number of panorama download attempts by outcome.",
		},
		[]string{"outcome"},
	)

	downloadRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greenview_download_retries_total",
			Help: "Total number of retried panorama downloads.",
		},
	)

	inferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenview_inferences_total",
			Help: "Total number of segmentation inference calls by outcome.",
		},
		[]string{"outcome"},
	)

	inferenceSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greenview_inference_duration_seconds",
			Help:    "Segmentation inference duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	itemFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenview_item_failures_total",
			Help: "Per-coordinate failures by pipeline stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(downloadsTotal)
	prometheus.MustRegister(downloadRetriesTotal)
	prometheus.MustRegister(inferencesTotal)
	prometheus.MustRegister(inferenceSeconds)
	prometheus.MustRegister(itemFailuresTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncDownload records a panorama download attempt outcome ("ok", "error",
// "quota", "skipped").
func IncDownload(outcome string) {
	downloadsTotal.WithLabelValues(outcome).Inc()
}

// IncDownloadRetry records one retried download attempt.
func IncDownloadRetry() {
	downloadRetriesTotal.Inc()
}

// IncInference records a segmentation call outcome ("ok", "error").
func IncInference(outcome string) {
	inferencesTotal.WithLabelValues(outcome).Inc()
}

// ObserveInferenceDuration records the wall time of one inference call.
func ObserveInferenceDuration(seconds float64) {
	inferenceSeconds.Observe(seconds)
}

// IncItemFailure records a per-coordinate failure at the given stage.
func IncItemFailure(stage string) {
	itemFailuresTotal.WithLabelValues(stage).Inc()
}
