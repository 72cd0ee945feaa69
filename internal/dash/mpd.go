// SPDX-License-Identifier: MIT

// Package dash resolves MPEG-DASH manifests into a single representation's
// ordered segment list.
package dash

import (
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"
)

// MPD is the subset of the manifest model needed to enumerate segments.
// Element names match regardless of XML namespace.
type MPD struct {
	XMLName                   xml.Name            `xml:"MPD"`
	ID                        string              `xml:"id,attr"`
	Type                      string              `xml:"type,attr"`
	MediaPresentationDuration string              `xml:"mediaPresentationDuration,attr"`
	BaseURLs                  []string            `xml:"BaseURL"`
	ProgramInformation        *ProgramInformation `xml:"ProgramInformation"`
	Periods                   []Period            `xml:"Period"`
}

type ProgramInformation struct {
	Title string `xml:"Title"`
}

type Period struct {
	ID              string           `xml:"id,attr"`
	Duration        string           `xml:"duration,attr"`
	BaseURLs        []string         `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	AdaptationSets  []AdaptationSet  `xml:"AdaptationSet"`
}

type AdaptationSet struct {
	ID              string           `xml:"id,attr"`
	ContentType     string           `xml:"contentType,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	BaseURLs        []string         `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
	Representations []Representation `xml:"Representation"`
}

type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int64            `xml:"bandwidth,attr"`
	Width           int              `xml:"width,attr"`
	Height          int              `xml:"height,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	Codecs          string           `xml:"codecs,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	BaseURLs        []string         `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
}

// SegmentTemplate attributes are pointers so that an absent attribute can be
// inherited from an enclosing level.
type SegmentTemplate struct {
	Media                  string           `xml:"media,attr"`
	Initialization         string           `xml:"initialization,attr"`
	Timescale              *int64           `xml:"timescale,attr"`
	Duration               *int64           `xml:"duration,attr"`
	StartNumber            *int64           `xml:"startNumber,attr"`
	PresentationTimeOffset *int64           `xml:"presentationTimeOffset,attr"`
	Timeline               *SegmentTimeline `xml:"SegmentTimeline"`
}

type SegmentTimeline struct {
	S []TimelineEntry `xml:"S"`
}

// TimelineEntry is one <S> element. T and R are nil when absent.
type TimelineEntry struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R *int64 `xml:"r,attr"`
}

type SegmentList struct {
	Timescale      *int64          `xml:"timescale,attr"`
	Duration       *int64          `xml:"duration,attr"`
	Initialization *Initialization `xml:"Initialization"`
	SegmentURLs    []SegmentURL    `xml:"SegmentURL"`
}

type Initialization struct {
	SourceURL string `xml:"sourceURL,attr"`
}

type SegmentURL struct {
	Media string `xml:"media,attr"`
}

// Parse decodes manifest text. Non-UTF-8 encodings named in the XML
// declaration are transcoded.
func Parse(text string) (*MPD, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = charset.NewReaderLabel
	var m MPD
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// firstBaseURL returns the first non-blank BaseURL of an element.
func firstBaseURL(urls []string) string {
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// merge overlays inner on outer attribute by attribute; inner wins.
func (outer *SegmentTemplate) merge(inner *SegmentTemplate) *SegmentTemplate {
	switch {
	case inner == nil && outer == nil:
		return nil
	case inner == nil:
		out := *outer
		return &out
	case outer == nil:
		out := *inner
		return &out
	}
	out := *outer
	if inner.Media != "" {
		out.Media = inner.Media
	}
	if inner.Initialization != "" {
		out.Initialization = inner.Initialization
	}
	if inner.Timescale != nil {
		out.Timescale = inner.Timescale
	}
	if inner.Duration != nil {
		out.Duration = inner.Duration
	}
	if inner.StartNumber != nil {
		out.StartNumber = inner.StartNumber
	}
	if inner.PresentationTimeOffset != nil {
		out.PresentationTimeOffset = inner.PresentationTimeOffset
	}
	if inner.Timeline != nil {
		out.Timeline = inner.Timeline
	}
	return &out
}

func (t *SegmentTemplate) timescale() int64 {
	if t.Timescale == nil || *t.Timescale <= 0 {
		return 1
	}
	return *t.Timescale
}

func (t *SegmentTemplate) startNumber() int64 {
	if t.StartNumber == nil {
		return 1
	}
	return *t.StartNumber
}

func (t *SegmentTemplate) presentationTimeOffset() int64 {
	if t.PresentationTimeOffset == nil {
		return 0
	}
	return *t.PresentationTimeOffset
}
