// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/fetch"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/metrics"
	"github.com/ManuGH/streamgrab/internal/telemetry"
)

// job is one download attempt. It carries copies of everything the loop
// needs so the loop never reads the stream record without the lock.
type job struct {
	id       string
	attempt  int
	ctx      context.Context
	cancel   context.CancelFunc
	format   manifest.Format
	title    string
	pageURL  string
	segments []manifest.Segment
	metadata manifest.Metadata
	started  time.Time
}

// begin moves a stream into downloading with fresh counters.
func (c *Coordinator) begin(parent context.Context, id string) (job, error) {
	c.mu.Lock()
	s, ok := c.streams[id]
	if !ok {
		c.mu.Unlock()
		return job{}, ErrStreamNotFound
	}
	if s.status == StatusDownloading {
		c.mu.Unlock()
		return job{}, ErrAlreadyDownloading
	}
	next, err := lifecycle.Next(s.status, eventStart)
	if err != nil {
		c.mu.Unlock()
		return job{}, fmt.Errorf("start download: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	s.status = next
	s.attempt++
	s.cancel = cancel
	s.downloadedSegments = 0
	s.downloadedBytes = 0
	s.progress = 0
	s.eta = nil
	s.lastError = ""
	s.savedAs = ""
	s.startedAt = c.now()
	s.completedAt = time.Time{}

	j := job{
		id:       s.id,
		attempt:  s.attempt,
		ctx:      ctx,
		cancel:   cancel,
		format:   s.format,
		title:    s.title,
		pageURL:  s.pageURL,
		segments: s.segments,
		metadata: s.metadata,
		started:  s.startedAt,
	}
	view := s.view()
	c.mu.Unlock()

	c.publish(bus.TopicStreamUpdated, view)
	return j, nil
}

// run is the per-segment loop. Segments are fetched strictly in order, one
// at a time; the first failure ends the attempt.
func (c *Coordinator) run(j job) error {
	defer j.cancel()

	ctx := xglog.ContextWithStreamID(j.ctx, j.id)
	ctx, span := telemetry.Tracer("streamgrab/engine").Start(ctx, "engine.download")
	defer span.End()
	logger := xglog.WithComponentFromContext(ctx, "engine").With().
		Str(xglog.FieldFormat, string(j.format)).
		Int(xglog.FieldSegments, len(j.segments)).
		Logger()

	metrics.RecordDownloadStart()
	logger.Info().Str(xglog.FieldEvent, "download.started").Msg("download started")

	header := refererHeader(j.pageURL)

	total := len(j.segments)
	buffers := make([][]byte, 0, total)
	var received int64
	for i, seg := range j.segments {
		if ctx.Err() != nil {
			return c.finishCancelled(ctx, j, received)
		}
		resp, err := c.fetcher.Retrieve(ctx, fetch.Request{URL: seg.URL, Header: header})
		if err == nil {
			err = fetch.Expect2xx(resp, seg.URL)
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.finishCancelled(ctx, j, received)
			}
			metrics.RecordSegment(false, 0)
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "download.segment_failed").
				Int(xglog.FieldSegment, i+1).
				Str(xglog.FieldSegmentURL, urlutil.SanitizeURL(seg.URL)).
				Msg("segment fetch failed")
			return c.finishFailed(ctx, j, received, fmt.Errorf("segment %d/%d: %w", i+1, total, err))
		}

		buffers = append(buffers, resp.Body)
		received += int64(len(resp.Body))
		metrics.RecordSegment(true, len(resp.Body))

		done, bytesSoFar := len(buffers), received
		elapsed := c.now().Sub(j.started)
		c.update(j.id, j.attempt, func(s *stream) {
			s.downloadedSegments = done
			s.downloadedBytes = bytesSoFar
			s.progress = Progress(done, total)
			s.eta = ETA(elapsed, done, total, bytesSoFar, s.estimatedSize)
		})
	}

	mime, ext := Container(j.metadata, j.segments)
	name := FileName(j.title, ext)
	data := bytes.Join(buffers, nil)

	// The sink is a hand-off: its failure is reported but does not fail the stream.
	if err := c.sink.Save(context.WithoutCancel(ctx), name, data); err != nil {
		metrics.RecordSaveFailure()
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "download.save_failed").
			Str(xglog.FieldPath, name).
			Msg("save sink rejected the download")
	}

	c.update(j.id, j.attempt, func(s *stream) {
		s.status = c.transition(s.status, eventComplete)
		s.progress = 100
		s.eta = nil
		s.cancel = nil
		s.savedAs = name
		s.completedAt = c.now()
	})
	metrics.RecordDownloadEnd(string(j.format), string(StatusDownloaded), c.now().Sub(j.started).Seconds())
	span.SetAttributes(telemetry.StreamAttributes(j.id, string(StatusDownloaded), received)...)
	logger.Info().
		Str(xglog.FieldEvent, "download.completed").
		Str(xglog.FieldPath, name).
		Str("mime", mime).
		Int64("bytes", received).
		Msg("download completed")
	return nil
}

func (c *Coordinator) finishCancelled(ctx context.Context, j job, received int64) error {
	c.update(j.id, j.attempt, func(s *stream) {
		s.status = c.transition(s.status, eventCancel)
		s.eta = nil
		s.startedAt = time.Time{}
		s.cancel = nil
	})
	metrics.RecordDownloadEnd(string(j.format), string(StatusCancelled), c.now().Sub(j.started).Seconds())
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.StreamAttributes(j.id, string(StatusCancelled), received)...)
	logger := xglog.WithComponentFromContext(ctx, "engine")
	logger.Info().
		Str(xglog.FieldEvent, "download.cancelled").
		Int64("bytes", received).
		Msg("download cancelled")
	return ErrCancelled
}

func (c *Coordinator) finishFailed(ctx context.Context, j job, received int64, cause error) error {
	c.update(j.id, j.attempt, func(s *stream) {
		s.status = c.transition(s.status, eventFail)
		s.eta = nil
		s.cancel = nil
		s.lastError = cause.Error()
		s.completedAt = c.now()
	})
	metrics.RecordDownloadEnd(string(j.format), string(StatusError), c.now().Sub(j.started).Seconds())
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.StreamAttributes(j.id, string(StatusError), received)...)
	span.SetAttributes(telemetry.ErrorAttributes(errorType(cause))...)
	span.SetStatus(codes.Error, cause.Error())
	logger := xglog.WithComponentFromContext(ctx, "engine")
	logger.Error().
		Err(cause).
		Str(xglog.FieldEvent, "download.failed").
		Msg("download failed")
	return cause
}

// transition applies ev from the lifecycle table. The loop only fires events
// valid from downloading, so a failure here means the record was reset and
// the current state is kept.
func (c *Coordinator) transition(from Status, ev event) Status {
	next, err := lifecycle.Next(from, ev)
	if err != nil {
		return from
	}
	return next
}

func errorType(err error) string {
	if errors.Is(err, fetch.ErrStatus) {
		return "status"
	}
	return "transport"
}

// refererHeader sends the observing page as Referer; nil when unknown.
func refererHeader(pageURL string) http.Header {
	if pageURL == "" {
		return nil
	}
	return http.Header{"Referer": []string{pageURL}}
}
