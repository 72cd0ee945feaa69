// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldStreamID  = "stream_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Manifest / stream fields
	FieldFormat      = "format"
	FieldManifestURL = "manifest_url"
	FieldSegmentURL  = "segment_url"
	FieldSegments    = "segments"
	FieldSegment     = "segment"
	FieldBandwidth   = "bandwidth"
	FieldResolution  = "resolution"
	FieldReason      = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldPageURL = "page_url"
)
