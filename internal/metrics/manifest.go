// Package metrics exposes Prometheus metrics for manifest resolution and
// segment downloads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels are bounded enums: format is hls|dash|direct, outcome and reason are
// fixed strings. URLs and stream ids never become labels.
var (
	// ManifestsDiscoveredTotal counts manifest URLs fed into the engine.
	ManifestsDiscoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_manifests_discovered_total",
		Help: "Total number of manifest URLs received from the discovery feed, by format.",
	}, []string{"format"})

	// ManifestResolveTotal counts resolutions by format and outcome
	// (accepted, ignored, empty, fetch_failed).
	ManifestResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_manifest_resolve_total",
		Help: "Total number of manifest resolutions, by format and outcome.",
	}, []string{"format", "outcome"})

	// ManifestIgnoredTotal counts manifests dropped by the classifier.
	ManifestIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_manifest_ignored_total",
		Help: "Total number of resolved manifests filtered out, by reason.",
	}, []string{"reason"})

	// ManifestResolveDuration tracks how long a resolution took.
	ManifestResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamgrab_manifest_resolve_duration_seconds",
		Help:    "Time taken to fetch and resolve a manifest.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"format"})

	// SizeProbesTotal counts size-estimation probes by result (ok, failed, no_length).
	SizeProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_size_probes_total",
		Help: "Total number of segment size probes, by result.",
	}, []string{"result"})
)

// RecordDiscovered increments the discovery counter.
func RecordDiscovered(format string) {
	ManifestsDiscoveredTotal.WithLabelValues(labelOrUnknown(format)).Inc()
}

// RecordResolve records a finished resolution.
func RecordResolve(format, outcome string, seconds float64) {
	ManifestResolveTotal.WithLabelValues(labelOrUnknown(format), outcome).Inc()
	ManifestResolveDuration.WithLabelValues(labelOrUnknown(format)).Observe(seconds)
}

// RecordIgnored records a classifier rejection.
func RecordIgnored(reason string) {
	ManifestIgnoredTotal.WithLabelValues(labelOrUnknown(reason)).Inc()
}

// RecordSizeProbe records one HEAD probe result.
func RecordSizeProbe(result string) {
	SizeProbesTotal.WithLabelValues(result).Inc()
}
