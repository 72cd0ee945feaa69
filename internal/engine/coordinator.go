// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine owns the session state: which manifests were seen, which
// were ignored, and the streams the user can download.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/classify"
	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/dash"
	"github.com/ManuGH/streamgrab/internal/discover"
	"github.com/ManuGH/streamgrab/internal/estimate"
	"github.com/ManuGH/streamgrab/internal/fetch"
	"github.com/ManuGH/streamgrab/internal/hls"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/metrics"
	"github.com/ManuGH/streamgrab/internal/sink"
	"github.com/ManuGH/streamgrab/internal/telemetry"
)

var (
	ErrStreamNotFound     = errors.New("stream not found")
	ErrAlreadyDownloading = errors.New("stream is already downloading")
	ErrNotDownloading     = errors.New("stream is not downloading")
	ErrCancelled          = errors.New("download cancelled")
	ErrNotManifest        = errors.New("url is not a manifest or media file")
	ErrDuplicate          = errors.New("manifest already seen")
	ErrIgnored            = errors.New("manifest ignored")
	ErrNoSegments         = errors.New("manifest has no segments")
)

// rescanParallelism bounds concurrent resolutions during a page rescan.
const rescanParallelism = 4

// Limits are the tunable resolution and estimation bounds.
type Limits struct {
	SegmentCap      int
	MaxVariantDepth int
	SizeSamples     int
	EstimateSize    bool
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{
		SegmentCap:      dash.DefaultSegmentCap,
		MaxVariantDepth: hls.DefaultMaxDepth,
		SizeSamples:     estimate.DefaultSamples,
		EstimateSize:    true,
	}
}

func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.SegmentCap <= 0 {
		l.SegmentCap = def.SegmentCap
	}
	if l.MaxVariantDepth <= 0 {
		l.MaxVariantDepth = def.MaxVariantDepth
	}
	if l.SizeSamples <= 0 {
		l.SizeSamples = def.SizeSamples
	}
	return l
}

// Options configures a Coordinator.
type Options struct {
	// Fetcher retrieves segments, size probes and rescanned pages. Required.
	Fetcher fetch.Retriever
	// ManifestFetcher retrieves manifests. Defaults to a Coalescer over Fetcher.
	ManifestFetcher fetch.Retriever
	// Sink receives finished downloads. Required.
	Sink sink.Sink
	// Bus receives stream notifications. Optional.
	Bus    bus.Bus
	Rules  classify.Rules
	Limits Limits
	// Now is the clock used for progress and ETA. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator is the download engine. All methods are safe for concurrent use.
type Coordinator struct {
	fetcher    fetch.Retriever
	manifests  fetch.Retriever
	sink       sink.Sink
	bus        bus.Bus
	classifier *classify.Classifier
	now        func() time.Time
	limits     atomic.Pointer[Limits]

	mu      sync.Mutex
	seen    map[string]struct{}
	ignored []IgnoredManifest
	streams map[string]*stream
	order   []string
	seq     int

	batchMu sync.Mutex

	// bgMu orders wg.Add against the cancel in Close.
	bgMu sync.Mutex
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a Coordinator. Close releases its background work.
func New(opts Options) (*Coordinator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("engine: sink is required")
	}
	manifests := opts.ManifestFetcher
	if manifests == nil {
		manifests = fetch.NewCoalescer(opts.Fetcher)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:    opts.Fetcher,
		manifests:  manifests,
		sink:       opts.Sink,
		bus:        opts.Bus,
		classifier: classify.New(opts.Rules),
		now:        now,
		seen:       make(map[string]struct{}),
		streams:    make(map[string]*stream),
		ctx:        ctx,
		stop:       stop,
	}
	c.SetLimits(opts.Limits)
	return c, nil
}

// Close cancels async downloads and size estimates and waits for them.
func (c *Coordinator) Close() {
	c.bgMu.Lock()
	c.stop()
	c.bgMu.Unlock()
	c.wg.Wait()
}

// goBackground runs fn tracked by Close. It reports false once Close has
// started.
func (c *Coordinator) goBackground(fn func()) bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// SetRules swaps the classification rules for manifests handled from now on.
func (c *Coordinator) SetRules(rules classify.Rules) {
	c.classifier.SetRules(rules)
}

// SetLimits swaps the resolution limits. Zero values select defaults.
func (c *Coordinator) SetLimits(l Limits) {
	n := l.normalized()
	c.limits.Store(&n)
}

// Limits returns the active limits.
func (c *Coordinator) Limits() Limits {
	return *c.limits.Load()
}

// HandleManifest resolves a discovered URL and, when it classifies as a
// video stream, registers it. Each URL is handled at most once per session
// unless its manifest could not be fetched.
func (c *Coordinator) HandleManifest(ctx context.Context, d Discovery) (*StreamView, error) {
	format, ok := manifest.DetectFormat(d.URL)
	if !ok {
		return nil, ErrNotManifest
	}
	if !c.markSeen(d.URL) {
		return nil, ErrDuplicate
	}
	metrics.RecordDiscovered(string(format))

	ctx, span := telemetry.Tracer("streamgrab/engine").Start(ctx, "engine.handle_manifest")
	defer span.End()
	logger := xglog.WithComponentFromContext(ctx, "engine").With().
		Str(xglog.FieldFormat, string(format)).
		Str(xglog.FieldManifestURL, urlutil.SanitizeURL(d.URL)).
		Logger()

	started := c.now()
	res, err := c.resolve(ctx, format, d.URL)
	elapsed := c.now().Sub(started).Seconds()
	span.SetAttributes(telemetry.ManifestAttributes(string(format), urlutil.SanitizeURL(d.URL), len(res.Segments))...)
	if err != nil {
		c.unmarkSeen(d.URL)
		metrics.RecordResolve(string(format), "fetch_failed", elapsed)
		span.SetAttributes(telemetry.ErrorAttributes("fetch")...)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(xglog.FieldEvent, "manifest.fetch_failed").Msg("manifest could not be fetched")
		return nil, fmt.Errorf("resolve %s manifest: %w", format, err)
	}
	if res.Empty() {
		metrics.RecordResolve(string(format), "empty", elapsed)
		logger.Info().Str(xglog.FieldEvent, "manifest.empty").Msg("manifest resolved to no segments")
		return nil, ErrNoSegments
	}

	if verdict, reason := c.classifier.Classify(d.URL, format, res); verdict == classify.Ignore {
		c.mu.Lock()
		c.ignored = append(c.ignored, IgnoredManifest{URL: d.URL, Reason: reason})
		c.mu.Unlock()
		metrics.RecordResolve(string(format), "ignored", elapsed)
		metrics.RecordIgnored(reason)
		logger.Info().
			Str(xglog.FieldEvent, "manifest.ignored").
			Str(xglog.FieldReason, reason).
			Int(xglog.FieldSegments, len(res.Segments)).
			Msg("manifest does not look like a video stream")
		return nil, fmt.Errorf("%w: %s", ErrIgnored, reason)
	}
	metrics.RecordResolve(string(format), "ok", elapsed)

	view := c.register(d, format, res)
	span.SetAttributes(telemetry.StreamAttributes(view.ID, string(view.Status), 0)...)
	logger.Info().
		Str(xglog.FieldEvent, "stream.added").
		Str(xglog.FieldStreamID, view.ID).
		Int(xglog.FieldSegments, view.TotalSegments).
		Str("title", view.Title).
		Msg("stream registered")
	c.publish(bus.TopicStreamAdded, view)

	if limits := c.Limits(); limits.EstimateSize {
		c.goBackground(func() { c.estimateSize(view.ID, d.PageURL, res.Segments, limits.SizeSamples) })
	}
	return &view, nil
}

func (c *Coordinator) resolve(ctx context.Context, format manifest.Format, rawURL string) (manifest.Result, error) {
	limits := c.Limits()
	switch format {
	case manifest.FormatHLS:
		return hls.NewResolver(c.manifests, limits.MaxVariantDepth).Resolve(ctx, rawURL)
	case manifest.FormatDASH:
		return dash.NewResolver(c.manifests, limits.SegmentCap).Resolve(ctx, rawURL)
	default:
		return directResult(rawURL), nil
	}
}

// directResult treats a plain media URL as a single-segment stream.
func directResult(rawURL string) manifest.Result {
	mime, ok := manifest.MimeFromURL(rawURL)
	if !ok {
		mime = manifest.DefaultMimeType
	}
	return manifest.Result{
		Segments: []manifest.Segment{{URL: rawURL}},
		Metadata: manifest.Metadata{MimeType: mime},
	}
}

func (c *Coordinator) markSeen(rawURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[rawURL]; ok {
		return false
	}
	c.seen[rawURL] = struct{}{}
	return true
}

func (c *Coordinator) unmarkSeen(rawURL string) {
	c.mu.Lock()
	delete(c.seen, rawURL)
	c.mu.Unlock()
}

func (c *Coordinator) register(d Discovery, format manifest.Format, res manifest.Result) StreamView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	title := firstNonEmpty(d.Title, res.Metadata.NameHint, DefaultTitle(c.seq))
	s := &stream{
		id:          uuid.NewString(),
		seq:         c.seq,
		manifestURL: d.URL,
		pageURL:     d.PageURL,
		format:      format,
		title:       title,
		segments:    res.Segments,
		metadata:    res.Metadata,
		discovered:  c.now(),
		status:      StatusIdle,
	}
	c.streams[s.id] = s
	c.order = append(c.order, s.id)
	metrics.SetStreamsTracked(len(c.streams))
	return s.view()
}

func (c *Coordinator) estimateSize(id, pageURL string, segments []manifest.Segment, samples int) {
	ctx := xglog.ContextWithStreamID(c.ctx, id)
	size, ok := estimate.New(c.fetcher, samples).Estimate(ctx, segments, refererHeader(pageURL))
	if !ok {
		logger := xglog.WithComponentFromContext(ctx, "engine")
		logger.Debug().
			Str(xglog.FieldEvent, "estimate.unavailable").
			Msg("size estimate unavailable")
		return
	}
	c.update(id, anyAttempt, func(s *stream) {
		s.estimatedSize = &size
	})
}

// Rescan scans pageURL for manifest URLs and hands each to HandleManifest.
// It returns how many new streams were registered.
func (c *Coordinator) Rescan(ctx context.Context, pageURL string) (int, error) {
	page, err := discover.Scan(ctx, c.fetcher, pageURL)
	if err != nil {
		return 0, fmt.Errorf("rescan: %w", err)
	}
	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rescanParallelism)
	for _, u := range page.URLs {
		g.Go(func() error {
			_, err := c.HandleManifest(gctx, Discovery{URL: u, PageURL: pageURL, Title: page.Title, Source: "rescan"})
			if err == nil {
				added.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(added.Load()), nil
}

// Download runs a download to its terminal state and returns its outcome:
// nil once saved, ErrCancelled when cancelled, or the segment failure.
func (c *Coordinator) Download(ctx context.Context, id string) error {
	j, err := c.begin(ctx, id)
	if err != nil {
		return err
	}
	return c.run(j)
}

// StartDownload begins a download in the background and returns immediately.
func (c *Coordinator) StartDownload(id string) error {
	j, err := c.begin(c.ctx, id)
	if err != nil {
		return err
	}
	if !c.goBackground(func() { _ = c.run(j) }) {
		// Closing: run observes the cancelled context and ends as cancelled.
		_ = c.run(j)
	}
	return nil
}

// Batch downloads ids one after another; a failure ends only that stream's
// turn. Concurrent batches queue behind each other.
func (c *Coordinator) Batch(ctx context.Context, ids []string) []Outcome {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	out := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		o := Outcome{ID: id}
		if err := ctx.Err(); err != nil {
			o.Error = err.Error()
		} else if err := c.Download(ctx, id); err != nil {
			o.Error = err.Error()
		}
		if v, err := c.Stream(id); err == nil {
			o.Status = v.Status
		}
		out = append(out, o)
	}
	return out
}

// Cancel requests cancellation of an active download. The stream becomes
// cancelled once its download loop observes the request.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	if !ok {
		return ErrStreamNotFound
	}
	if s.status != StatusDownloading || s.cancel == nil {
		return ErrNotDownloading
	}
	s.cancel()
	return nil
}

// Dismiss removes a stream from the list, cancelling any active download.
// Its URL stays seen for the rest of the session.
func (c *Coordinator) Dismiss(id string) error {
	c.mu.Lock()
	s, ok := c.streams[id]
	if !ok {
		c.mu.Unlock()
		return ErrStreamNotFound
	}
	if s.cancel != nil {
		s.cancel()
	}
	delete(c.streams, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	metrics.SetStreamsTracked(len(c.streams))
	view := s.view()
	c.mu.Unlock()

	c.publish(bus.TopicStreamRemoved, view)
	return nil
}

// Reset clears the session: streams, the seen set, the ignored set and the
// title counter. Active downloads are cancelled.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	views := make([]StreamView, 0, len(c.order))
	for _, id := range c.order {
		s := c.streams[id]
		if s.cancel != nil {
			s.cancel()
		}
		views = append(views, s.view())
	}
	c.seen = make(map[string]struct{})
	c.ignored = nil
	c.streams = make(map[string]*stream)
	c.order = nil
	c.seq = 0
	metrics.SetStreamsTracked(0)
	c.mu.Unlock()

	for _, v := range views {
		c.publish(bus.TopicStreamRemoved, v)
	}
}

// Streams returns snapshots in discovery order.
func (c *Coordinator) Streams() []StreamView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StreamView, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.streams[id].view())
	}
	return out
}

// Stream returns one snapshot.
func (c *Coordinator) Stream(id string) (StreamView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	if !ok {
		return StreamView{}, ErrStreamNotFound
	}
	return s.view(), nil
}

// Segments returns a copy of a stream's resolved segment list.
func (c *Coordinator) Segments(id string) ([]manifest.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return append([]manifest.Segment(nil), s.segments...), nil
}

// Ignored returns the manifests the classifier rejected, oldest first.
func (c *Coordinator) Ignored() []IgnoredManifest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]IgnoredManifest(nil), c.ignored...)
}

// anyAttempt makes update apply regardless of the download attempt.
const anyAttempt = -1

// update mutates a stream under the lock and publishes stream.updated. It is
// a no-op when the stream is gone or a newer attempt has started.
func (c *Coordinator) update(id string, attempt int, fn func(s *stream)) (StreamView, bool) {
	c.mu.Lock()
	s, ok := c.streams[id]
	if !ok || (attempt != anyAttempt && s.attempt != attempt) {
		c.mu.Unlock()
		return StreamView{}, false
	}
	fn(s)
	view := s.view()
	c.mu.Unlock()

	c.publish(bus.TopicStreamUpdated, view)
	return view, true
}

func (c *Coordinator) publish(topic string, view StreamView) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(c.ctx, topic, Event{Topic: topic, Stream: view})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
