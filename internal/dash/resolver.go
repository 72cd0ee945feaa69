// SPDX-License-Identifier: MIT

package dash

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/fetch"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/telemetry"
)

// Resolver turns a DASH manifest URL into the best representation's segments.
type Resolver struct {
	fetcher    fetch.Retriever
	segmentCap int
}

// NewResolver creates a resolver. segmentCap <= 0 selects DefaultSegmentCap.
func NewResolver(fetcher fetch.Retriever, segmentCap int) *Resolver {
	if segmentCap <= 0 {
		segmentCap = DefaultSegmentCap
	}
	return &Resolver{fetcher: fetcher, segmentCap: segmentCap}
}

// Resolve fetches the manifest and expands it. Only a failed fetch is an
// error; unparseable manifests go through Fallback.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string) (manifest.Result, error) {
	ctx, span := telemetry.Tracer("streamgrab/dash").Start(ctx, "dash.resolve")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.ManifestURLKey, urlutil.SanitizeURL(manifestURL)))

	text, err := fetch.GetText(ctx, r.fetcher, manifestURL)
	if err != nil {
		return manifest.Result{}, fmt.Errorf("fetch manifest: %w", err)
	}
	res := r.ResolveText(xglog.WithComponentFromContext(ctx, "dash"), text, manifestURL)
	span.SetAttributes(attribute.Int(telemetry.SegmentCountKey, len(res.Segments)))
	return res, nil
}

// candidate is a representation competing for selection. It is ranked on
// its attributes and expanded only when chosen.
type candidate struct {
	rank manifest.Candidate
	info manifest.VariantInfo
	mime string
	rc   repContext
}

// ResolveText expands already-fetched manifest text.
func (r *Resolver) ResolveText(logger zerolog.Logger, text, manifestURL string) manifest.Result {
	mpd, err := Parse(text)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "dash.parse_failed").
			Str(xglog.FieldManifestURL, urlutil.SanitizeURL(manifestURL)).
			Msg("structured parse failed, using fallback")
		return Fallback(text, manifestURL)
	}

	candidates := collect(mpd, manifestURL)
	manifest.RankRepresentations(candidates, func(c candidate) manifest.Candidate { return c.rank })

	// Expanded best first against one shared cap.
	b := &budget{remaining: r.segmentCap}
	for _, c := range candidates {
		segs, ok := c.rc.expand(b)
		if b.exhausted {
			logger.Warn().
				Str(xglog.FieldEvent, "dash.segment_cap_reached").
				Str(xglog.FieldManifestURL, urlutil.SanitizeURL(manifestURL)).
				Int("segment_cap", r.segmentCap).
				Str("representation", c.info.Name).
				Msg("segment cap reached, segment list truncated")
		}
		if !ok {
			continue
		}
		logger.Debug().
			Str(xglog.FieldEvent, "dash.representation_selected").
			Int("representations", len(candidates)).
			Int64(xglog.FieldBandwidth, c.info.Bandwidth).
			Str(xglog.FieldResolution, c.info.Resolution).
			Int(xglog.FieldSegments, len(segs)).
			Msg("selected representation")
		return result(mpd, c, segs)
	}

	logger.Info().
		Str(xglog.FieldEvent, "dash.no_representation").
		Str(xglog.FieldManifestURL, urlutil.SanitizeURL(manifestURL)).
		Msg("no representation produced segments, using fallback")
	return Fallback(text, manifestURL)
}

func result(mpd *MPD, c candidate, segs []manifest.Segment) manifest.Result {
	info := c.info
	meta := manifest.Metadata{
		TotalDuration: sumDurations(segs),
		NameHint:      nameHint(mpd),
		VariantInfo:   &info,
		MimeType:      c.mime,
	}
	if meta.MimeType == "" {
		meta.MimeType = manifest.DefaultMimeType
		if m, ok := manifest.MimeFromURL(firstMedia(segs)); ok {
			meta.MimeType = m
		}
	}
	return manifest.Result{Segments: segs, Metadata: meta}
}

// collect lists every representation in document order with its effective
// template, segment list and base URL.
func collect(mpd *MPD, manifestURL string) []candidate {
	presentation, _ := ParseDuration(mpd.MediaPresentationDuration)
	mpdBase := resolveBase(manifestURL, mpd.BaseURLs)

	var out []candidate
	for pi := range mpd.Periods {
		period := &mpd.Periods[pi]
		periodBase := resolveBase(mpdBase, period.BaseURLs)
		endSecs, ok := ParseDuration(period.Duration)
		if !ok {
			endSecs = presentation
		}
		for ai := range period.AdaptationSets {
			as := &period.AdaptationSets[ai]
			asBase := resolveBase(periodBase, as.BaseURLs)
			asTmpl := period.SegmentTemplate.merge(as.SegmentTemplate)
			for ri := range as.Representations {
				rep := &as.Representations[ri]
				rc := repContext{
					rep:      rep,
					tmpl:     asTmpl.merge(rep.SegmentTemplate),
					list:     rep.SegmentList,
					baseURL:  resolveBase(asBase, rep.BaseURLs),
					endSecs:  endSecs,
					explicit: firstBaseURL(rep.BaseURLs) != "",
				}
				if rc.list == nil {
					rc.list = as.SegmentList
				}
				out = append(out, newCandidate(as, rep, rc))
			}
		}
	}
	return out
}

func newCandidate(as *AdaptationSet, rep *Representation, rc repContext) candidate {
	mime := firstNonEmpty(rep.MimeType, as.MimeType)
	codecs := firstNonEmpty(rep.Codecs, as.Codecs)
	info := manifest.VariantInfo{
		Name:      rep.ID,
		Width:     rep.Width,
		Height:    rep.Height,
		Bandwidth: rep.Bandwidth,
		FrameRate: parseFrameRate(firstNonEmpty(rep.FrameRate, as.FrameRate)),
		Codecs:    codecs,
	}
	if rep.Width > 0 && rep.Height > 0 {
		info.Resolution = strconv.Itoa(rep.Width) + "x" + strconv.Itoa(rep.Height)
	}
	return candidate{
		rank: manifest.Candidate{
			Bandwidth: rep.Bandwidth,
			Width:     rep.Width,
			Height:    rep.Height,
			Kind:      contentKind(as.ContentType, mime, codecs, rep.Width > 0),
		},
		info: info,
		mime: mime,
		rc:   rc,
	}
}

func contentKind(contentType, mime, codecs string, hasWidth bool) manifest.ContentKind {
	switch {
	case contentType == "video", strings.HasPrefix(mime, "video/"), hasWidth:
		return manifest.ContentVideo
	case contentType == "audio", strings.HasPrefix(mime, "audio/"):
		return manifest.ContentAudio
	case strings.HasPrefix(codecs, "avc"), strings.HasPrefix(codecs, "hvc"), strings.HasPrefix(codecs, "hev"),
		strings.HasPrefix(codecs, "vp"), strings.HasPrefix(codecs, "av01"):
		return manifest.ContentVideo
	case strings.HasPrefix(codecs, "mp4a"), strings.HasPrefix(codecs, "opus"), strings.HasPrefix(codecs, "ac-3"),
		strings.HasPrefix(codecs, "ec-3"):
		return manifest.ContentAudio
	}
	return manifest.ContentOther
}

// resolveBase resolves the element's own BaseURL, if any, against parent.
func resolveBase(parent string, own []string) string {
	if b := firstBaseURL(own); b != "" {
		return urlutil.Resolve(b, parent)
	}
	return parent
}

func nameHint(mpd *MPD) string {
	if mpd.ProgramInformation != nil {
		if t := strings.TrimSpace(mpd.ProgramInformation.Title); t != "" {
			return t
		}
	}
	return ""
}

// parseFrameRate accepts "25" or "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, frac := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !frac {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func sumDurations(segs []manifest.Segment) *float64 {
	var total float64
	seen := false
	for _, s := range segs {
		if s.Init || s.Duration == nil {
			continue
		}
		total += *s.Duration
		seen = true
	}
	if !seen {
		return nil
	}
	return &total
}

func firstMedia(segs []manifest.Segment) string {
	for _, s := range segs {
		if !s.Init {
			return s.URL
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
