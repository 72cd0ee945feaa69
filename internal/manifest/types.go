// SPDX-License-Identifier: MIT

// Package manifest holds the format-independent result of resolving a
// streaming manifest into an ordered list of downloadable segments.
package manifest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
)

// Format identifies how a stream's segments were discovered.
type Format string

const (
	FormatHLS    Format = "hls"
	FormatDASH   Format = "dash"
	FormatDirect Format = "direct"
)

var (
	hlsPattern  = regexp.MustCompile(`(?i)\.m3u8(\?|$)`)
	dashPattern = regexp.MustCompile(`(?i)\.mpd(\?|$)`)
)

var directExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".webm": true,
	".mov":  true,
	".mkv":  true,
}

// DetectFormat classifies a discovered URL by its path. URLs that are neither
// manifests nor direct media files are reported with ok=false.
func DetectFormat(rawURL string) (Format, bool) {
	switch {
	case hlsPattern.MatchString(rawURL):
		return FormatHLS, true
	case dashPattern.MatchString(rawURL):
		return FormatDASH, true
	case directExtensions[urlutil.Ext(rawURL)]:
		return FormatDirect, true
	}
	return "", false
}

// Segment is one downloadable piece of a stream. Duration is nil when the
// manifest does not say how long the segment is.
type Segment struct {
	URL      string   `json:"url"`
	Duration *float64 `json:"duration,omitempty"`
	Init     bool     `json:"init,omitempty"`
}

// Seconds is a convenience constructor for a known duration.
func Seconds(v float64) *float64 {
	return &v
}

// VariantInfo describes the rendition that was chosen. It is informational only.
type VariantInfo struct {
	Name             string  `json:"name,omitempty"`
	Resolution       string  `json:"resolution,omitempty"`
	Width            int     `json:"width,omitempty"`
	Height           int     `json:"height,omitempty"`
	Bandwidth        int64   `json:"bandwidth,omitempty"`
	AverageBandwidth int64   `json:"averageBandwidth,omitempty"`
	FrameRate        float64 `json:"frameRate,omitempty"`
	Codecs           string  `json:"codecs,omitempty"`
}

// Area returns width*height, or 0 when the resolution is unknown.
func (v VariantInfo) Area() int64 {
	return int64(v.Width) * int64(v.Height)
}

// Merge overlays nested on v: any field set in nested wins.
func (v VariantInfo) Merge(nested VariantInfo) VariantInfo {
	out := v
	if nested.Name != "" {
		out.Name = nested.Name
	}
	if nested.Resolution != "" {
		out.Resolution = nested.Resolution
		out.Width, out.Height = nested.Width, nested.Height
	}
	if nested.Bandwidth != 0 {
		out.Bandwidth = nested.Bandwidth
	}
	if nested.AverageBandwidth != 0 {
		out.AverageBandwidth = nested.AverageBandwidth
	}
	if nested.FrameRate != 0 {
		out.FrameRate = nested.FrameRate
	}
	if nested.Codecs != "" {
		out.Codecs = nested.Codecs
	}
	return out
}

// ParseResolution parses "1920x1080". Malformed input yields zeros.
func ParseResolution(s string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width < 0 || height < 0 {
		return 0, 0
	}
	return width, height
}

// Metadata accompanies a resolved segment list.
type Metadata struct {
	TotalDuration *float64     `json:"totalDuration,omitempty"`
	NameHint      string       `json:"nameHint,omitempty"`
	VariantInfo   *VariantInfo `json:"variantInfo,omitempty"`
	MimeType      string       `json:"mimeType,omitempty"`
}

// Result is produced once per resolved manifest and is not modified afterwards.
type Result struct {
	Segments []Segment `json:"segments"`
	Metadata Metadata  `json:"metadata"`
}

// Empty reports whether the result carries no segments.
func (r Result) Empty() bool {
	return len(r.Segments) == 0
}

// MediaSegments returns the number of non-initialization segments.
func (r Result) MediaSegments() int {
	n := 0
	for _, s := range r.Segments {
		if !s.Init {
			n++
		}
	}
	return n
}
