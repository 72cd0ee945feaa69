// SPDX-License-Identifier: MIT

// Package classify decides whether a resolved manifest is worth surfacing as
// a downloadable stream.
package classify

import (
	"strings"
	"sync/atomic"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

// Verdict is the outcome of Classify.
type Verdict int

const (
	Accept Verdict = iota
	Ignore
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "ignore"
}

// Reasons reported with Ignore.
const (
	ReasonEmpty           = "empty"
	ReasonDenyToken       = "deny_token"
	ReasonTooFewSegments  = "too_few_segments"
	ReasonNonVideoSegment = "non_video_extension"
	ReasonAudioOnly       = "audio_only"
)

// Rules are matched case-insensitively as substrings, except DenyExtensions
// which are compared against the first media segment's path extension.
type Rules struct {
	DenyTokens     []string `yaml:"denyTokens"`
	DenyExtensions []string `yaml:"denyExtensions"`
	AudioTokens    []string `yaml:"audioTokens"`
	VideoTokens    []string `yaml:"videoTokens"`
}

// DefaultRules returns the built-in filter.
func DefaultRules() Rules {
	return Rules{
		DenyTokens: []string{
			"subtitle", "caption", "sprite", "preview", "thumb", "trickplay", "storyboard",
			"/ads/", "adbreak", "ad-marker", "scte35", "vast", "vmap",
		},
		DenyExtensions: []string{".vtt", ".srt", ".ttml", ".dfxp", ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
		AudioTokens:    []string{"audio", "mp4a", ".m4a", ".aac", ".mp3"},
		VideoTokens:    []string{"video", "avc", "hvc", "hevc", "h264", "h265", "vp9", "av01", "1080", "720", "480", "360", ".m4v"},
	}
}

// normalized lower-cases every entry and drops blanks.
func (r Rules) normalized() Rules {
	return Rules{
		DenyTokens:     lowerAll(r.DenyTokens),
		DenyExtensions: lowerAll(r.DenyExtensions),
		AudioTokens:    lowerAll(r.AudioTokens),
		VideoTokens:    lowerAll(r.VideoTokens),
	}
}

// Classifier applies the current Rules. Rules can be swapped at any time,
// including while Classify runs on other goroutines.
type Classifier struct {
	rules atomic.Pointer[Rules]
}

// New creates a classifier with the given rules.
func New(rules Rules) *Classifier {
	c := &Classifier{}
	c.SetRules(rules)
	return c
}

// SetRules replaces the active rules.
func (c *Classifier) SetRules(rules Rules) {
	n := rules.normalized()
	c.rules.Store(&n)
}

// Rules returns the active rules.
func (c *Classifier) Rules() Rules {
	return *c.rules.Load()
}

// Classify returns Ignore with a reason when the result looks like a
// subtitle, thumbnail, ad, audio-only or otherwise non-video manifest.
// Anything ambiguous is accepted. Direct media files skip the segment count
// rule since they are a single segment by nature.
func (c *Classifier) Classify(manifestURL string, format manifest.Format, res manifest.Result) (Verdict, string) {
	rules := c.rules.Load()
	if res.Empty() {
		return Ignore, ReasonEmpty
	}

	lowerURL := strings.ToLower(manifestURL)
	if containsAny(lowerURL, rules.DenyTokens) {
		return Ignore, ReasonDenyToken
	}
	if format != manifest.FormatDirect && len(res.Segments) <= 1 {
		return Ignore, ReasonTooFewSegments
	}

	first := strings.ToLower(firstMediaURL(res))
	ext := urlutil.Ext(first)
	for _, deny := range rules.DenyExtensions {
		if ext == deny {
			return Ignore, ReasonNonVideoSegment
		}
	}

	audio := containsAny(lowerURL, rules.AudioTokens) || containsAny(first, rules.AudioTokens)
	video := containsAny(lowerURL, rules.VideoTokens) || containsAny(first, rules.VideoTokens)
	if audio && !video {
		return Ignore, ReasonAudioOnly
	}
	return Accept, ""
}

func firstMediaURL(res manifest.Result) string {
	for _, s := range res.Segments {
		if !s.Init {
			return s.URL
		}
	}
	return res.Segments[0].URL
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
