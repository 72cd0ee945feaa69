// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/classify"
	"github.com/ManuGH/streamgrab/internal/fsm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const cdn = "https://cdn.example.test"

func TestNew_RequiresFetcherAndSink(t *testing.T) {
	_, err := New(Options{Sink: &recordingSink{}})
	require.Error(t, err)
	_, err = New(Options{Fetcher: newOrigin()})
	require.Error(t, err)
}

func TestHandleManifest_RegistersStream(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/show", "show", 10)
	c := newTestCoordinator(t, o, &recordingSink{})

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url, PageURL: "https://site.test/watch", Title: "Evening News"})
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Evening News", view.Title)
	assert.Equal(t, StatusIdle, view.Status)
	assert.Equal(t, 10, view.TotalSegments)
	require.NotNil(t, view.Metadata.TotalDuration)
	assert.InDelta(t, 40.0, *view.Metadata.TotalDuration, 1e-9)

	streams := c.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, view.ID, streams[0].ID)

	segs, err := c.Segments(view.ID)
	require.NoError(t, err)
	assert.Len(t, segs, 10)
	assert.Equal(t, segURL(cdn+"/show", 1), segs[0].URL)
}

func TestHandleManifest_SeenOncePerSession(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/a", "a", 3)
	c := newTestCoordinator(t, o, &recordingSink{})

	_, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	_, err = c.HandleManifest(context.Background(), Discovery{URL: url})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, o.hits(url))
	assert.Len(t, c.Streams(), 1)

	c.Reset()
	assert.Empty(t, c.Streams())
	_, err = c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
}

func TestHandleManifest_DefaultTitles(t *testing.T) {
	o := newOrigin()
	first := o.servePlaylist(cdn+"/one", "one", 2)
	second := o.servePlaylist(cdn+"/two", "two", 2)
	c := newTestCoordinator(t, o, &recordingSink{})

	v1, err := c.HandleManifest(context.Background(), Discovery{URL: first})
	require.NoError(t, err)
	v2, err := c.HandleManifest(context.Background(), Discovery{URL: second})
	require.NoError(t, err)

	assert.Equal(t, "Video 1", v1.Title)
	assert.Equal(t, "Video 2", v2.Title)
}

func TestHandleManifest_RejectsNonManifestURL(t *testing.T) {
	c := newTestCoordinator(t, newOrigin(), &recordingSink{})
	_, err := c.HandleManifest(context.Background(), Discovery{URL: cdn + "/page.html"})
	require.ErrorIs(t, err, ErrNotManifest)
}

func TestHandleManifest_FetchFailureCanBeRetried(t *testing.T) {
	o := newOrigin()
	url := cdn + "/late/index.m3u8"
	c := newTestCoordinator(t, o, &recordingSink{})

	_, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.Error(t, err)
	assert.Empty(t, c.Streams())
	assert.Empty(t, c.Ignored())

	o.servePlaylist(cdn+"/late", "late", 2)
	_, err = c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	assert.Len(t, c.Streams(), 1)
}

func TestHandleManifest_ThumbnailIsIgnored(t *testing.T) {
	o := newOrigin()
	url := cdn + "/preview/index.m3u8"
	o.serve(url, "#EXTM3U\n#EXTINF:1.0,\nthumb.jpg\n#EXT-X-ENDLIST\n")
	c := newTestCoordinator(t, o, &recordingSink{})

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.ErrorIs(t, err, ErrIgnored)
	assert.Nil(t, view)
	assert.Empty(t, c.Streams())

	ignored := c.Ignored()
	require.Len(t, ignored, 1)
	assert.Equal(t, url, ignored[0].URL)
	assert.NotEmpty(t, ignored[0].Reason)
}

func TestHandleManifest_DirectMediaIsSingleSegment(t *testing.T) {
	o := newOrigin()
	url := cdn + "/files/movie.webm"
	o.serve(url, "webm-bytes")
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url, Title: "Movie"})
	require.NoError(t, err)
	assert.Equal(t, 1, view.TotalSegments)
	assert.Equal(t, "video/webm", view.Metadata.MimeType)

	require.NoError(t, c.Download(context.Background(), view.ID))
	saved := s.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "Movie.webm", saved[0].name)
	assert.Equal(t, "webm-bytes", saved[0].data)
}

func TestHandleManifest_EstimatesSizeInBackground(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/sized", "abc", 4)
	c := newTestCoordinator(t, o, &recordingSink{}, func(opts *Options) {
		opts.Limits = Limits{EstimateSize: true, SizeSamples: 2}
	})

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := c.Stream(view.ID)
		return err == nil && v.EstimatedSizeBytes != nil
	}, 2*time.Second, 5*time.Millisecond)

	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	// Each body is "abc-<i>;", six bytes.
	assert.Equal(t, int64(24), *v.EstimatedSizeBytes)
}

func TestHandleManifest_SizeProbesSendPageReferer(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/guarded", "g", 4)
	c := newTestCoordinator(t, o, &recordingSink{}, func(opts *Options) {
		opts.Limits = Limits{EstimateSize: true, SizeSamples: 2}
	})

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url, PageURL: "https://www.example.test/watch"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := c.Stream(view.ID)
		return err == nil && v.EstimatedSizeBytes != nil
	}, 2*time.Second, 5*time.Millisecond)

	o.mu.Lock()
	defer o.mu.Unlock()
	heads := 0
	for _, call := range o.calls {
		if call.Method == http.MethodHead {
			heads++
			assert.Equal(t, "https://www.example.test/watch", call.Header.Get("Referer"))
		}
	}
	assert.Equal(t, 2, heads)
}

func TestHandleManifest_PublishesAdded(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/pub", "pub", 2)
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, bus.TopicStreamAdded)
	require.NoError(t, err)
	defer sub.Close()

	c := newTestCoordinator(t, o, &recordingSink{}, func(opts *Options) { opts.Bus = b })
	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)

	select {
	case msg := <-sub.C():
		ev, ok := msg.(Event)
		require.True(t, ok)
		assert.Equal(t, bus.TopicStreamAdded, ev.Topic)
		assert.Equal(t, view.ID, ev.Stream.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no stream.added event")
	}
}

func TestDownload_SavesConcatenatedSegments(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/ok", "ok", 3)
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url, PageURL: "https://site.test/p", Title: "My Show"})
	require.NoError(t, err)
	require.NoError(t, c.Download(context.Background(), view.ID))

	saved := s.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "My_Show.ts", saved[0].name)
	assert.Equal(t, "ok-1;ok-2;ok-3;", saved[0].data)

	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, v.Status)
	assert.Equal(t, 3, v.DownloadedSegments)
	assert.Equal(t, int64(15), v.DownloadedBytes)
	assert.InDelta(t, 100.0, v.ProgressPercent, 1e-9)
	assert.Nil(t, v.ETA)
	assert.NotNil(t, v.CompletedAt)
	assert.Equal(t, "My_Show.ts", v.SavedAs)

	for _, req := range o.gets() {
		if strings.HasSuffix(req.URL, ".ts") {
			assert.Equal(t, "https://site.test/p", req.Header.Get("Referer"))
		}
	}

	err = c.Download(context.Background(), view.ID)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
}

func TestDownload_SaveFailureStillCompletes(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/sf", "sf", 2)
	s := &recordingSink{err: errors.New("disk full")}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	require.NoError(t, c.Download(context.Background(), view.ID))

	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, v.Status)
	assert.Len(t, s.saved(), 1)
}

func TestDownload_CancelAfterThreeOfTen(t *testing.T) {
	o := newOrigin()
	base := cdn + "/cancel"
	url := o.servePlaylist(base, "c", 10)
	arrived := o.blockOn(segURL(base, 4))
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Download(context.Background(), view.ID) }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("fourth segment was never requested")
	}

	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, v.Status)
	assert.Equal(t, 3, v.DownloadedSegments)
	assert.InDelta(t, 30.0, v.ProgressPercent, 1e-9)
	require.ErrorIs(t, c.StartDownload(view.ID), ErrAlreadyDownloading)

	require.NoError(t, c.Cancel(view.ID))
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("download did not stop after cancel")
	}

	v, err = c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, v.Status)
	assert.Equal(t, 3, v.DownloadedSegments)
	assert.Nil(t, v.ETA)
	assert.Nil(t, v.StartedAt)
	assert.Empty(t, s.saved())
	for i := 5; i <= 10; i++ {
		assert.Zero(t, o.hits(segURL(base, i)), "segment %d", i)
	}
	require.ErrorIs(t, c.Cancel(view.ID), ErrNotDownloading)

	// A cancelled stream starts over with fresh counters.
	require.NoError(t, c.Download(context.Background(), view.ID))
	v, err = c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, v.Status)
	assert.Equal(t, 10, v.DownloadedSegments)
	require.Len(t, s.saved(), 1)
}

func TestDownload_FailureAtFourthOfTen(t *testing.T) {
	o := newOrigin()
	base := cdn + "/fail"
	url := o.servePlaylist(base, "f", 10)
	o.failOn(segURL(base, 4), errors.New("connection reset by peer"))
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)

	err = c.Download(context.Background(), view.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)

	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, 3, v.DownloadedSegments)
	assert.Contains(t, v.LastError, "connection reset")
	assert.Empty(t, s.saved())
	for i := 5; i <= 10; i++ {
		assert.Zero(t, o.hits(segURL(base, i)), "segment %d", i)
	}
}

func TestDownload_NonSuccessStatusFails(t *testing.T) {
	o := newOrigin()
	base := cdn + "/gone"
	url := o.servePlaylist(base, "g", 3)
	c := newTestCoordinator(t, o, &recordingSink{})

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	o.mu.Lock()
	delete(o.bodies, segURL(base, 2))
	o.mu.Unlock()

	require.Error(t, c.Download(context.Background(), view.ID))
	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, 1, v.DownloadedSegments)
	assert.Contains(t, v.LastError, "404")
}

func TestStartDownload_RunsInBackground(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/bg", "bg", 4)
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	require.NoError(t, c.StartDownload(view.ID))

	require.Eventually(t, func() bool {
		v, err := c.Stream(view.ID)
		return err == nil && v.Status == StatusDownloaded
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, s.saved(), 1)
}

func TestStartDownload_AfterCloseEndsCancelled(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/late", "late", 3)
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)
	c.Close()

	require.NoError(t, c.StartDownload(view.ID))
	v, err := c.Stream(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, v.Status)
	assert.Empty(t, s.saved())
}

func TestClose_ConcurrentWithBackgroundWork(t *testing.T) {
	o := newOrigin()
	c := newTestCoordinator(t, o, &recordingSink{}, func(opts *Options) {
		opts.Limits = Limits{EstimateSize: true, SizeSamples: 2}
	})

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = o.servePlaylist(fmt.Sprintf("%s/race-%d", cdn, i), "r", 3)
	}

	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := c.HandleManifest(context.Background(), Discovery{URL: u})
			if err == nil {
				_ = c.StartDownload(view.ID)
			}
		}()
	}
	c.Close()
	wg.Wait()
	c.Close()

	for _, v := range c.Streams() {
		assert.NotEqual(t, StatusDownloading, v.Status, "stream %s", v.ID)
	}
}

func TestBatch_SerializesStreams(t *testing.T) {
	o := newOrigin()
	a := o.servePlaylist(cdn+"/a", "a", 5)
	b := o.servePlaylist(cdn+"/b", "b", 5)
	broken := o.servePlaylist(cdn+"/x", "x", 2)
	o.failOn(segURL(cdn+"/x", 1), errors.New("boom"))
	s := &recordingSink{}
	c := newTestCoordinator(t, o, s)

	var ids []string
	for _, u := range []string{a, broken, b} {
		v, err := c.HandleManifest(context.Background(), Discovery{URL: u})
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}

	outcomes := c.Batch(context.Background(), ids)
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusDownloaded, outcomes[0].Status)
	assert.Equal(t, StatusError, outcomes[1].Status)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Equal(t, StatusDownloaded, outcomes[2].Status)
	assert.Equal(t, 1, o.maxInFlight())

	var order []string
	for _, req := range o.gets() {
		if strings.HasSuffix(req.URL, ".ts") {
			order = append(order, strings.TrimPrefix(req.URL, cdn+"/"))
		}
	}
	assert.Equal(t, []string{
		"a/seg-1.ts", "a/seg-2.ts", "a/seg-3.ts", "a/seg-4.ts", "a/seg-5.ts",
		"x/seg-1.ts",
		"b/seg-1.ts", "b/seg-2.ts", "b/seg-3.ts", "b/seg-4.ts", "b/seg-5.ts",
	}, order)
	assert.Len(t, s.saved(), 2)
}

func TestDismiss_RemovesAndPublishes(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/d", "d", 2)
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, bus.TopicStreamRemoved)
	require.NoError(t, err)
	defer sub.Close()

	c := newTestCoordinator(t, o, &recordingSink{}, func(opts *Options) { opts.Bus = b })
	view, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.NoError(t, err)

	require.NoError(t, c.Dismiss(view.ID))
	require.ErrorIs(t, c.Dismiss(view.ID), ErrStreamNotFound)
	_, err = c.Stream(view.ID)
	require.ErrorIs(t, err, ErrStreamNotFound)

	select {
	case msg := <-sub.C():
		assert.Equal(t, view.ID, msg.(Event).Stream.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no stream.removed event")
	}

	_, err = c.HandleManifest(context.Background(), Discovery{URL: url})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestSetRules_AppliesToNewManifests(t *testing.T) {
	o := newOrigin()
	url := o.servePlaylist(cdn+"/promo", "p", 3)
	c := newTestCoordinator(t, o, &recordingSink{})

	rules := classify.DefaultRules()
	rules.DenyTokens = append(rules.DenyTokens, "promo")
	c.SetRules(rules)

	_, err := c.HandleManifest(context.Background(), Discovery{URL: url})
	require.ErrorIs(t, err, ErrIgnored)
	require.Len(t, c.Ignored(), 1)
	assert.Equal(t, classify.ReasonDenyToken, c.Ignored()[0].Reason)
}

func TestSetLimits_NormalizesZeroValues(t *testing.T) {
	c := newTestCoordinator(t, newOrigin(), &recordingSink{})
	c.SetLimits(Limits{SegmentCap: 10})
	l := c.Limits()
	assert.Equal(t, 10, l.SegmentCap)
	assert.Equal(t, DefaultLimits().MaxVariantDepth, l.MaxVariantDepth)
	assert.Equal(t, DefaultLimits().SizeSamples, l.SizeSamples)
	assert.False(t, l.EstimateSize)
}

func TestRescan_RegistersPageManifests(t *testing.T) {
	o := newOrigin()
	page := "https://site.test/watch"
	hlsURL := o.servePlaylist(cdn+"/r1", "r", 3)
	o.serve(page, `<html><head><title>Rescanned</title></head><body>
<video src="`+hlsURL+`"></video>
<a href="/about">about</a>
</body></html>`)
	c := newTestCoordinator(t, o, &recordingSink{})

	n, err := c.Rescan(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	streams := c.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "Rescanned", streams[0].Title)
	assert.Equal(t, page, streams[0].PageURL)

	n, err = c.Rescan(context.Background(), page)
	require.NoError(t, err)
	assert.Zero(t, n)
}
