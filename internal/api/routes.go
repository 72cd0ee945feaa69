// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/streamgrab/internal/api/middleware"
)

func (s *Server) routes(stack middleware.StackConfig, metrics http.Handler) http.Handler {
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/manifests", s.handleManifest)
		r.Post("/rescan", s.handleRescan)
		r.Post("/batch", s.handleBatch)
		r.Post("/reset", s.handleReset)
		r.Get("/ignored", s.handleIgnored)
		r.Get("/events", s.handleEvents)

		r.Get("/streams", s.handleListStreams)
		r.Get("/streams.m3u", s.handleStreamIndex)
		r.Route("/streams/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetStream)
			r.Delete("/", s.handleDismiss)
			r.Get("/segments", s.handleSegments)
			r.Get("/playlist.m3u8", s.handleStreamPlaylist)
			r.Post("/download", s.handleDownload)
			r.Post("/cancel", s.handleCancel)
		})
	})
	return r
}
