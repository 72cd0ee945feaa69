// SPDX-License-Identifier: MIT

package dash

import (
	"math"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

// DefaultSegmentCap bounds the number of media segments generated for one
// manifest, summed over every representation.
const DefaultSegmentCap = 20000

// budget is the shared segment allowance for one manifest. exhausted is set
// once a take is refused.
type budget struct {
	remaining int
	exhausted bool
}

func (b *budget) take() bool {
	if b.remaining <= 0 {
		b.exhausted = true
		return false
	}
	b.remaining--
	return true
}

// repContext is everything needed to expand one representation.
type repContext struct {
	rep      *Representation
	tmpl     *SegmentTemplate
	list     *SegmentList
	baseURL  string
	endSecs  float64 // period or presentation length; 0 when unknown
	explicit bool    // representation carries its own BaseURL
}

func (rc repContext) vars(number, time int64) map[string]any {
	return map[string]any{
		"RepresentationID": rc.rep.ID,
		"Bandwidth":        rc.rep.Bandwidth,
		"Number":           number,
		"Time":             time,
	}
}

// expand produces the representation's segments: init first (if any), then
// media in presentation order. ok is false when no media segment was found.
func (rc repContext) expand(b *budget) ([]manifest.Segment, bool) {
	var media []manifest.Segment
	var init string

	switch {
	case rc.tmpl != nil && rc.tmpl.Media != "" && rc.tmpl.Timeline != nil && len(rc.tmpl.Timeline.S) > 0:
		media = rc.expandTimeline(b)
		init = rc.tmpl.Initialization
	case rc.tmpl != nil && rc.tmpl.Media != "" && rc.tmpl.Duration != nil && *rc.tmpl.Duration > 0 && rc.endSecs > 0:
		media = rc.expandFixed(b)
		init = rc.tmpl.Initialization
	case rc.list != nil && len(rc.list.SegmentURLs) > 0:
		media = rc.expandList(b)
		if rc.list.Initialization != nil {
			init = rc.list.Initialization.SourceURL
		}
	case rc.explicit:
		if b.take() {
			seg := manifest.Segment{URL: rc.baseURL}
			if rc.endSecs > 0 {
				seg.Duration = manifest.Seconds(rc.endSecs)
			}
			media = []manifest.Segment{seg}
		}
	}
	if len(media) == 0 {
		return nil, false
	}

	if init == "" {
		return media, true
	}
	initURL := urlutil.Resolve(urlutil.ExpandTemplate(init, rc.vars(rc.startNumber(), 0)), rc.baseURL)
	out := make([]manifest.Segment, 0, len(media)+1)
	out = append(out, manifest.Segment{URL: initURL, Duration: manifest.Seconds(0), Init: true})
	return append(out, media...), true
}

func (rc repContext) startNumber() int64 {
	if rc.tmpl == nil {
		return 1
	}
	return rc.tmpl.startNumber()
}

func (rc repContext) segment(number, time int64, seconds float64) manifest.Segment {
	u := urlutil.ExpandTemplate(rc.tmpl.Media, rc.vars(number, time))
	return manifest.Segment{URL: urlutil.Resolve(u, rc.baseURL), Duration: manifest.Seconds(seconds)}
}

// expandTimeline replays a SegmentTimeline. An absent r means no repeats; a
// negative r repeats up to the next entry's start, else to the end of the
// period, else until the budget runs out.
func (rc repContext) expandTimeline(b *budget) []manifest.Segment {
	tmpl := rc.tmpl
	timescale := tmpl.timescale()
	pto := tmpl.presentationTimeOffset()
	entries := tmpl.Timeline.S

	var out []manifest.Segment
	number := tmpl.startNumber()
	var clock int64
	for i, s := range entries {
		if s.T != nil {
			clock = *s.T
		}
		if s.D <= 0 {
			continue
		}
		count := int64(1)
		if s.R != nil {
			switch {
			case *s.R >= 0:
				count = *s.R + 1
			case i+1 < len(entries) && entries[i+1].T != nil:
				count = ceilDiv(*entries[i+1].T-clock, s.D)
			case rc.endSecs > 0:
				end := pto + int64(math.Round(rc.endSecs*float64(timescale)))
				count = ceilDiv(end-clock, s.D)
			default:
				count = math.MaxInt64
			}
		}

		seconds := float64(s.D) / float64(timescale)
		for k := int64(0); k < count; k++ {
			if !b.take() {
				return out
			}
			out = append(out, rc.segment(number, max(clock-pto, 0), seconds))
			clock += s.D
			number++
		}
	}
	return out
}

// expandFixed generates ceil(total / segmentDuration) segments; the last one
// is shortened to end at the period boundary.
func (rc repContext) expandFixed(b *budget) []manifest.Segment {
	tmpl := rc.tmpl
	timescale := tmpl.timescale()
	dur := *tmpl.Duration
	segSecs := float64(dur) / float64(timescale)
	count := int64(math.Ceil(rc.endSecs/segSecs - 1e-9))

	var out []manifest.Segment
	number := tmpl.startNumber()
	for i := int64(0); i < count; i++ {
		if !b.take() {
			break
		}
		secs := segSecs
		if rest := rc.endSecs - float64(i)*segSecs; rest < secs {
			secs = rest
		}
		out = append(out, rc.segment(number+i, i*dur, secs))
	}
	return out
}

func (rc repContext) expandList(b *budget) []manifest.Segment {
	var secs *float64
	if l := rc.list; l.Duration != nil && *l.Duration > 0 {
		ts := int64(1)
		if l.Timescale != nil && *l.Timescale > 0 {
			ts = *l.Timescale
		}
		secs = manifest.Seconds(float64(*l.Duration) / float64(ts))
	}
	out := make([]manifest.Segment, 0, len(rc.list.SegmentURLs))
	for _, su := range rc.list.SegmentURLs {
		if su.Media == "" {
			continue
		}
		if !b.take() {
			break
		}
		out = append(out, manifest.Segment{URL: urlutil.Resolve(su.Media, rc.baseURL), Duration: secs})
	}
	return out
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
