// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/playlist"
)

const (
	contentTypeM3U  = "audio/x-mpegurl"
	contentTypeM3U8 = "application/vnd.apple.mpegurl"
)

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams := s.engine.Streams()
	if streams == nil {
		streams = []engine.StreamView{}
	}
	writeJSON(w, http.StatusOK, streams)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Stream(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := s.engine.Segments(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	if segs == nil {
		segs = []manifest.Segment{}
	}
	writeJSON(w, http.StatusOK, segs)
}

// handleStreamIndex lists every registered stream as an M3U index, in
// registration order, pointing at the manifest URLs.
func (s *Server) handleStreamIndex(w http.ResponseWriter, r *http.Request) {
	streams := s.engine.Streams()
	items := make([]playlist.Item, 0, len(streams))
	for _, v := range streams {
		it := playlist.Item{Title: v.Title, URL: v.ManifestURL, Group: string(v.Format)}
		if v.Metadata.TotalDuration != nil {
			it.Duration = *v.Metadata.TotalDuration
		}
		items = append(items, it)
	}

	var buf bytes.Buffer
	if err := playlist.WriteM3U(&buf, items); err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	w.Header().Set("Content-Type", contentTypeM3U)
	_, _ = buf.WriteTo(w)
}

// handleStreamPlaylist re-encodes the resolved segment list as a VOD playlist.
func (s *Server) handleStreamPlaylist(w http.ResponseWriter, r *http.Request) {
	segs, err := s.engine.Segments(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	var buf bytes.Buffer
	if err := playlist.WriteM3U8(&buf, segs); err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	w.Header().Set("Content-Type", contentTypeM3U8)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.StartDownload(id); err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	s.writeStream(w, r, id, http.StatusAccepted)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Cancel(id); err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	s.writeStream(w, r, id, http.StatusOK)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Dismiss(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStream(w http.ResponseWriter, r *http.Request, id string, code int) {
	view, err := s.engine.Stream(id)
	if err != nil {
		writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, code, view)
}
