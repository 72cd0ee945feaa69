// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"time"

	"github.com/ManuGH/streamgrab/internal/manifest"
)

// Discovery is one candidate URL from the discovery feed.
type Discovery struct {
	URL string `json:"url"`
	// PageURL is the document the request was observed on. It is sent as
	// Referer on segment requests.
	PageURL string `json:"pageUrl,omitempty"`
	// Title is the page title, preferred over manifest name hints.
	Title string `json:"title,omitempty"`
	// Source names the feed, e.g. "observed", "frame", "rescan", "cli".
	Source string `json:"source,omitempty"`
}

// stream is the coordinator-owned record. All fields are guarded by
// Coordinator.mu except segments and metadata, which never change.
type stream struct {
	id          string
	seq         int
	manifestURL string
	pageURL     string
	format      manifest.Format
	title       string
	segments    []manifest.Segment
	metadata    manifest.Metadata
	discovered  time.Time

	estimatedSize *int64

	status             Status
	downloadedSegments int
	downloadedBytes    int64
	progress           float64
	eta                *time.Duration
	startedAt          time.Time
	completedAt        time.Time
	lastError          string
	savedAs            string

	// attempt increments on every start so a superseded download loop
	// cannot overwrite a newer attempt's counters.
	attempt int
	cancel  context.CancelFunc
}

// StreamView is an immutable snapshot of a stream.
type StreamView struct {
	ID                 string            `json:"id"`
	Seq                int               `json:"seq"`
	ManifestURL        string            `json:"manifestUrl"`
	PageURL            string            `json:"pageUrl,omitempty"`
	Format             manifest.Format   `json:"format"`
	Title              string            `json:"title"`
	TotalSegments      int               `json:"totalSegments"`
	Metadata           manifest.Metadata `json:"metadata"`
	EstimatedSizeBytes *int64            `json:"estimatedSizeBytes,omitempty"`
	Status             Status            `json:"status"`
	DownloadedSegments int               `json:"downloadedSegments"`
	DownloadedBytes    int64             `json:"downloadedBytes"`
	ProgressPercent    float64           `json:"progressPercent"`
	ETA                *time.Duration    `json:"-"`
	ETASeconds         *float64          `json:"etaSeconds,omitempty"`
	StartedAt          *time.Time        `json:"startedAt,omitempty"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty"`
	LastError          string            `json:"lastError,omitempty"`
	SavedAs            string            `json:"savedAs,omitempty"`
	DiscoveredAt       time.Time         `json:"discoveredAt"`
}

func (s *stream) view() StreamView {
	v := StreamView{
		ID:                 s.id,
		Seq:                s.seq,
		ManifestURL:        s.manifestURL,
		PageURL:            s.pageURL,
		Format:             s.format,
		Title:              s.title,
		TotalSegments:      len(s.segments),
		Metadata:           s.metadata,
		Status:             s.status,
		DownloadedSegments: s.downloadedSegments,
		DownloadedBytes:    s.downloadedBytes,
		ProgressPercent:    s.progress,
		LastError:          s.lastError,
		SavedAs:            s.savedAs,
		DiscoveredAt:       s.discovered,
	}
	if s.estimatedSize != nil {
		n := *s.estimatedSize
		v.EstimatedSizeBytes = &n
	}
	if s.eta != nil {
		d := *s.eta
		secs := d.Seconds()
		v.ETA, v.ETASeconds = &d, &secs
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		v.StartedAt = &t
	}
	if !s.completedAt.IsZero() {
		t := s.completedAt
		v.CompletedAt = &t
	}
	return v
}

// IgnoredManifest records a manifest the classifier rejected.
type IgnoredManifest struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Outcome is the result of one stream in a batch.
type Outcome struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Event is the bus payload for every stream topic.
type Event struct {
	Topic  string     `json:"topic"`
	Stream StreamView `json:"stream"`
}
