// SPDX-License-Identifier: MIT

// Package estimate extrapolates a stream's total size from a few HEAD probes.
package estimate

import (
	"context"
	"math"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/fetch"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/metrics"
)

// DefaultSamples is the number of segments probed per stream.
const DefaultSamples = 3

// Estimator probes segment sizes. It is advisory: it never returns errors and
// callers must not wait on it before downloading.
type Estimator struct {
	fetcher fetch.Retriever
	samples int
}

// New creates an Estimator. samples <= 0 selects DefaultSamples.
func New(fetcher fetch.Retriever, samples int) *Estimator {
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Estimator{fetcher: fetcher, samples: samples}
}

// SampleIndices returns floor(i/n*total) for i in [0, n), n = min(samples, total).
func SampleIndices(total, samples int) []int {
	n := min(samples, total)
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(math.Floor(float64(i) / float64(n) * float64(total)))
	}
	return out
}

// Estimate returns round(mean observed Content-Length * media segment count).
// Init segments are neither probed nor counted. header is sent with every
// probe. ok is false when no probe reported a length.
func (e *Estimator) Estimate(ctx context.Context, segments []manifest.Segment, header http.Header) (int64, bool) {
	media := mediaSegments(segments)
	indices := SampleIndices(len(media), e.samples)
	if len(indices) == 0 {
		return 0, false
	}
	logger := xglog.WithComponentFromContext(ctx, "estimate")

	sizes := make([]int64, len(indices))
	found := make([]bool, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range indices {
		segURL := media[idx].URL
		g.Go(func() error {
			resp, err := e.fetcher.Retrieve(gctx, fetch.Request{URL: segURL, Method: http.MethodHead, Header: header})
			if err == nil {
				err = fetch.Expect2xx(resp, segURL)
			}
			if err != nil {
				metrics.RecordSizeProbe("failed")
				logger.Debug().
					Err(err).
					Str(xglog.FieldEvent, "estimate.probe_failed").
					Str(xglog.FieldSegmentURL, urlutil.SanitizeURL(segURL)).
					Msg("size probe failed")
				return nil
			}
			n, ok := resp.ContentLength()
			if !ok {
				metrics.RecordSizeProbe("no_length")
				return nil
			}
			metrics.RecordSizeProbe("ok")
			sizes[i], found[i] = n, true
			return nil
		})
	}
	_ = g.Wait()

	var sum int64
	var hits int
	for i := range sizes {
		if found[i] {
			sum += sizes[i]
			hits++
		}
	}
	if hits == 0 {
		return 0, false
	}
	avg := float64(sum) / float64(hits)
	return int64(math.Round(avg * float64(len(media)))), true
}

func mediaSegments(segments []manifest.Segment) []manifest.Segment {
	if len(segments) == 0 || !segments[0].Init {
		return segments
	}
	out := make([]manifest.Segment, 0, len(segments)-1)
	for _, s := range segments {
		if !s.Init {
			out = append(out, s)
		}
	}
	return out
}
