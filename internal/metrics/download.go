// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts downloads reaching a terminal state
	// (downloaded, error, cancelled).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_downloads_total",
		Help: "Total number of downloads that reached a terminal state, by format and status.",
	}, []string{"format", "status"})

	// DownloadsActive is the number of streams currently downloading.
	DownloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamgrab_downloads_active",
		Help: "Current number of streams in the downloading state.",
	})

	// SegmentsFetchedTotal counts segment retrievals by result (ok, failed).
	SegmentsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgrab_segments_fetched_total",
		Help: "Total number of segment retrievals, by result.",
	}, []string{"result"})

	// SegmentBytesTotal counts downloaded segment payload bytes.
	SegmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgrab_segment_bytes_total",
		Help: "Total number of segment payload bytes downloaded.",
	})

	// DownloadDuration tracks wall time of completed downloads.
	DownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamgrab_download_duration_seconds",
		Help:    "Wall time from download start to terminal state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"status"})

	// SaveFailuresTotal counts save sink errors.
	SaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgrab_save_failures_total",
		Help: "Total number of artifacts the save sink failed to persist.",
	})

	// StreamsTracked is the number of streams in the current session.
	StreamsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamgrab_streams_tracked",
		Help: "Current number of streams surfaced in the session.",
	})
)

// RecordDownloadStart marks a stream entering downloading.
func RecordDownloadStart() {
	DownloadsActive.Inc()
}

// RecordDownloadEnd marks a stream leaving downloading.
func RecordDownloadEnd(format, status string, seconds float64) {
	DownloadsActive.Dec()
	DownloadsTotal.WithLabelValues(labelOrUnknown(format), status).Inc()
	DownloadDuration.WithLabelValues(status).Observe(seconds)
}

// RecordSegment records one segment retrieval.
func RecordSegment(ok bool, bytes int) {
	if !ok {
		SegmentsFetchedTotal.WithLabelValues("failed").Inc()
		return
	}
	SegmentsFetchedTotal.WithLabelValues("ok").Inc()
	SegmentBytesTotal.Add(float64(bytes))
}

// RecordSaveFailure increments the save failure counter.
func RecordSaveFailure() {
	SaveFailuresTotal.Inc()
}

// SetStreamsTracked publishes the session stream count.
func SetStreamsTracked(n int) {
	StreamsTracked.Set(float64(n))
}
