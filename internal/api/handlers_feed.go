// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/streamgrab/internal/engine"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/validate"
)

var httpSchemes = []string{"http", "https"}

type acceptedResponse struct {
	Accepted bool   `json:"accepted"`
	URL      string `json:"url,omitempty"`
}

type rescanRequest struct {
	PageURL string `json:"pageUrl"`
}

type rescanResponse struct {
	PageURL    string `json:"pageUrl"`
	Registered int    `json:"registered"`
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type batchResponse struct {
	Outcomes []engine.Outcome `json:"outcomes"`
}

func waitRequested(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return ok
}

// handleManifest is the discovery feed. Resolution runs in the background
// unless ?wait=true is given, in which case the registered stream is returned.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	var d engine.Discovery
	if err := decodeJSON(w, r, &d); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	v := validate.New()
	v.URL("url", d.URL, httpSchemes)
	if d.PageURL != "" {
		v.URL("pageUrl", d.PageURL, httpSchemes)
	}
	if err := v.Err(); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if d.Source == "" {
		d.Source = "api"
	}

	if waitRequested(r) {
		view, err := s.engine.HandleManifest(r.Context(), d)
		if err != nil {
			writeEngineError(w, r, err, true)
			return
		}
		writeJSON(w, http.StatusCreated, view)
		return
	}

	reqID := xglog.RequestIDFromContext(r.Context())
	started := s.goBackground(func(ctx context.Context) {
		ctx = xglog.ContextWithRequestID(ctx, reqID)
		if _, err := s.engine.HandleManifest(ctx, d); err != nil && !isExpectedRejection(err) {
			logger := xglog.WithComponentFromContext(ctx, "api")
			logger.Warn().Err(err).Str(xglog.FieldManifestURL, d.URL).Msg("manifest resolution failed")
		}
	})
	if !started {
		writeProblem(w, r, http.StatusServiceUnavailable, "shutting_down", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true, URL: d.URL})
}

// isExpectedRejection reports feed outcomes that are routine, not failures.
func isExpectedRejection(err error) bool {
	return errors.Is(err, engine.ErrDuplicate) ||
		errors.Is(err, engine.ErrNotManifest) ||
		errors.Is(err, engine.ErrIgnored)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	var req rescanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	v := validate.New()
	v.URL("pageUrl", req.PageURL, httpSchemes)
	if err := v.Err(); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	n, err := s.engine.Rescan(r.Context(), req.PageURL)
	if err != nil {
		writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, rescanResponse{PageURL: req.PageURL, Registered: n})
}

// handleBatch downloads ids one after another. Without ?wait=true the batch
// runs in the background and progress is observable on the event stream.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		writeBadRequest(w, r, errors.New("ids must not be empty"))
		return
	}

	if waitRequested(r) {
		writeJSON(w, http.StatusOK, batchResponse{Outcomes: s.engine.Batch(r.Context(), req.IDs)})
		return
	}

	ids := append([]string(nil), req.IDs...)
	if !s.goBackground(func(ctx context.Context) { s.engine.Batch(ctx, ids) }) {
		writeProblem(w, r, http.StatusServiceUnavailable, "shutting_down", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIgnored(w http.ResponseWriter, r *http.Request) {
	ignored := s.engine.Ignored()
	if ignored == nil {
		ignored = []engine.IgnoredManifest{}
	}
	writeJSON(w, http.StatusOK, ignored)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}
