// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/fsm"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/playlist"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, kind string, err error) {
	body := errorBody{Error: kind, RequestID: xglog.RequestIDFromContext(r.Context())}
	if err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, code, body)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, r, http.StatusBadRequest, "bad_request", err)
}

// writeEngineError maps engine errors to statuses. Anything unrecognised is
// treated as an upstream failure when upstream is set, else as internal.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, upstream bool) {
	code, kind := classifyError(err, upstream)
	if code >= http.StatusInternalServerError {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str(xglog.FieldPath, r.URL.Path).Msg("request failed")
	}
	writeProblem(w, r, code, kind, err)
}

func classifyError(err error, upstream bool) (int, string) {
	switch {
	case errors.Is(err, engine.ErrStreamNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, engine.ErrAlreadyDownloading),
		errors.Is(err, engine.ErrNotDownloading),
		errors.Is(err, fsm.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, engine.ErrNotManifest):
		return http.StatusUnprocessableEntity, "not_manifest"
	case errors.Is(err, engine.ErrIgnored):
		return http.StatusUnprocessableEntity, "ignored"
	case errors.Is(err, engine.ErrNoSegments),
		errors.Is(err, playlist.ErrNoMediaSegments):
		return http.StatusUnprocessableEntity, "no_segments"
	case upstream:
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
