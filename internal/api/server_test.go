// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/fsm"
	"github.com/ManuGH/streamgrab/internal/playlist"
)

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestManifest_WaitRegistersStream(t *testing.T) {
	h := newHarness(t)
	url := h.cdn.playlist("https://cdn.test/a", 3)

	v := h.register(t, url, "Evening News")
	assert.Equal(t, "Evening News", v.Title)
	assert.Equal(t, 3, v.TotalSegments)
	assert.Equal(t, engine.StatusIdle, v.Status)

	list := decode[[]engine.StreamView](t, h.do(t, http.MethodGet, "/api/v1/streams", nil))
	require.Len(t, list, 1)
	assert.Equal(t, v.ID, list[0].ID)

	got := decode[engine.StreamView](t, h.do(t, http.MethodGet, "/api/v1/streams/"+v.ID, nil))
	assert.Equal(t, url, got.ManifestURL)
}

func TestManifest_Rejections(t *testing.T) {
	h := newHarness(t)
	url := h.cdn.playlist("https://cdn.test/a", 2)
	h.register(t, url, "")

	cases := []struct {
		name string
		path string
		body any
		code int
		kind string
	}{
		{"duplicate", "/api/v1/manifests?wait=true", engine.Discovery{URL: url}, http.StatusConflict, "duplicate"},
		{"not a manifest", "/api/v1/manifests?wait=true", engine.Discovery{URL: "https://cdn.test/page.html"}, http.StatusUnprocessableEntity, "not_manifest"},
		{"upstream 404", "/api/v1/manifests?wait=true", engine.Discovery{URL: "https://cdn.test/missing.m3u8"}, http.StatusBadGateway, "upstream_error"},
		{"relative url", "/api/v1/manifests", engine.Discovery{URL: "/index.m3u8"}, http.StatusBadRequest, "bad_request"},
		{"bad scheme", "/api/v1/manifests", engine.Discovery{URL: "ftp://cdn.test/a.m3u8"}, http.StatusBadRequest, "bad_request"},
		{"unknown field", "/api/v1/manifests", map[string]string{"uri": url}, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, decode[errorBody](t, w).Error)
		})
	}
}

func TestManifest_AsyncAccepted(t *testing.T) {
	h := newHarness(t)
	url := h.cdn.playlist("https://cdn.test/async", 2)

	w := h.do(t, http.MethodPost, "/api/v1/manifests", engine.Discovery{URL: url})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[acceptedResponse](t, w).Accepted)

	require.Eventually(t, func() bool { return len(h.coord.Streams()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestManifest_RejectedAfterClose(t *testing.T) {
	h := newHarness(t)
	h.srv.Close()

	w := h.do(t, http.MethodPost, "/api/v1/manifests", engine.Discovery{URL: "https://cdn.test/x.m3u8"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSegmentsAndPlaylists(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, h.cdn.playlist("https://cdn.test/p", 2), "Clip")

	segs := h.do(t, http.MethodGet, "/api/v1/streams/"+v.ID+"/segments", nil)
	require.Equal(t, http.StatusOK, segs.Code)
	assert.Contains(t, segs.Body.String(), "https://cdn.test/p/seg-2.ts")

	m3u8 := h.do(t, http.MethodGet, "/api/v1/streams/"+v.ID+"/playlist.m3u8", nil)
	require.Equal(t, http.StatusOK, m3u8.Code)
	assert.Equal(t, contentTypeM3U8, m3u8.Header().Get("Content-Type"))
	assert.Contains(t, m3u8.Body.String(), "#EXTM3U")
	assert.Contains(t, m3u8.Body.String(), "https://cdn.test/p/seg-1.ts")

	index := h.do(t, http.MethodGet, "/api/v1/streams.m3u", nil)
	require.Equal(t, http.StatusOK, index.Code)
	assert.Equal(t, contentTypeM3U, index.Header().Get("Content-Type"))
	assert.Contains(t, index.Body.String(), ",Clip\nhttps://cdn.test/p/index.m3u8\n")

	missing := h.do(t, http.MethodGet, "/api/v1/streams/nope/playlist.m3u8", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestDownloadLifecycle(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, h.cdn.playlist("https://cdn.test/d", 3), "Show")

	w := h.do(t, http.MethodPost, "/api/v1/streams/"+v.ID+"/download", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		got, err := h.coord.Stream(v.ID)
		return err == nil && got.Status == engine.StatusDownloaded
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Show.ts"}, h.sink.list())

	again := h.do(t, http.MethodPost, "/api/v1/streams/"+v.ID+"/download", nil)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "invalid_state", decode[errorBody](t, again).Error)

	cancel := h.do(t, http.MethodPost, "/api/v1/streams/"+v.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, cancel.Code)

	unknown := h.do(t, http.MethodPost, "/api/v1/streams/nope/download", nil)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestDismiss(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, h.cdn.playlist("https://cdn.test/x", 2), "")

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/v1/streams/"+v.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/streams/"+v.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/v1/streams/"+v.ID, nil).Code)
}

func TestBatch_Wait(t *testing.T) {
	h := newHarness(t)
	a := h.register(t, h.cdn.playlist("https://cdn.test/a", 2), "A")
	b := h.register(t, h.cdn.playlist("https://cdn.test/b", 2), "B")

	w := h.do(t, http.MethodPost, "/api/v1/batch?wait=true", batchRequest{IDs: []string{a.ID, "ghost", b.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[batchResponse](t, w).Outcomes
	require.Len(t, out, 3)
	assert.Equal(t, engine.StatusDownloaded, out[0].Status)
	assert.NotEmpty(t, out[1].Error)
	assert.Equal(t, engine.StatusDownloaded, out[2].Status)
	assert.Equal(t, []string{"A.ts", "B.ts"}, h.sink.list())
}

func TestBatch_AsyncAndValidation(t *testing.T) {
	h := newHarness(t)
	a := h.register(t, h.cdn.playlist("https://cdn.test/a", 2), "A")

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/v1/batch", batchRequest{}).Code)

	w := h.do(t, http.MethodPost, "/api/v1/batch", batchRequest{IDs: []string{a.ID}})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(h.sink.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestIgnoredAndReset(t *testing.T) {
	h := newHarness(t)
	thumbs := "https://ads.test/thumbs.m3u8"
	h.cdn.mu.Lock()
	h.cdn.bodies[thumbs] = "#EXTM3U\n#EXTINF:1.0,\nthumb.jpg\n#EXT-X-ENDLIST\n"
	h.cdn.mu.Unlock()
	h.register(t, h.cdn.playlist("https://cdn.test/r", 2), "")

	w := h.do(t, http.MethodPost, "/api/v1/manifests?wait=true", engine.Discovery{URL: thumbs})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ignored", decode[errorBody](t, w).Error)

	ignored := decode[[]engine.IgnoredManifest](t, h.do(t, http.MethodGet, "/api/v1/ignored", nil))
	require.Len(t, ignored, 1)
	assert.Equal(t, thumbs, ignored[0].URL)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodPost, "/api/v1/reset", nil).Code)
	list := decode[[]engine.StreamView](t, h.do(t, http.MethodGet, "/api/v1/streams", nil))
	assert.Empty(t, list)
	assert.Empty(t, decode[[]engine.IgnoredManifest](t, h.do(t, http.MethodGet, "/api/v1/ignored", nil)))
}

func TestRescan(t *testing.T) {
	h := newHarness(t)
	url := h.cdn.playlist("https://cdn.test/page", 2)
	h.cdn.mu.Lock()
	h.cdn.bodies["https://site.test/watch"] = fmt.Sprintf(`<html><head><title>Watch</title></head><body><video src=%q></video></body></html>`, url)
	h.cdn.mu.Unlock()

	w := h.do(t, http.MethodPost, "/api/v1/rescan", rescanRequest{PageURL: "https://site.test/watch"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[rescanResponse](t, w).Registered)

	bad := h.do(t, http.MethodPost, "/api/v1/rescan", rescanRequest{})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err      error
		upstream bool
		code     int
	}{
		{fmt.Errorf("x: %w", engine.ErrStreamNotFound), false, http.StatusNotFound},
		{engine.ErrDuplicate, true, http.StatusConflict},
		{engine.ErrAlreadyDownloading, false, http.StatusConflict},
		{fmt.Errorf("start download: %w", fsm.ErrInvalidTransition), false, http.StatusConflict},
		{fmt.Errorf("%w: thumbnail", engine.ErrIgnored), true, http.StatusUnprocessableEntity},
		{playlist.ErrNoMediaSegments, false, http.StatusUnprocessableEntity},
		{errors.New("dial tcp: refused"), true, http.StatusBadGateway},
		{errors.New("boom"), false, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _ := classifyError(tc.err, tc.upstream)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
