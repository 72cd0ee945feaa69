package hls

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/fetch"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/telemetry"
)

// DefaultMaxDepth bounds master -> variant indirection on top of the visited set.
const DefaultMaxDepth = 8

// Visited is the set of playlist URLs already entered in one resolution chain.
type Visited map[string]struct{}

// Resolver turns an HLS playlist URL into a segment list, following master
// playlists into their best variant.
type Resolver struct {
	fetcher  fetch.Retriever
	maxDepth int
}

// NewResolver creates a resolver. maxDepth <= 0 selects DefaultMaxDepth.
func NewResolver(fetcher fetch.Retriever, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{fetcher: fetcher, maxDepth: maxDepth}
}

// Resolve fetches and resolves the playlist at playlistURL. The only error is a
// failed fetch of playlistURL itself; nested failures yield an empty result.
func (r *Resolver) Resolve(ctx context.Context, playlistURL string) (manifest.Result, error) {
	return r.ResolveVisited(ctx, playlistURL, Visited{})
}

// ResolveVisited is Resolve with a caller-supplied visited set. A URL already in
// visited resolves to an empty result instead of being fetched again.
func (r *Resolver) ResolveVisited(ctx context.Context, playlistURL string, visited Visited) (manifest.Result, error) {
	ctx, span := telemetry.Tracer("streamgrab/hls").Start(ctx, "hls.resolve")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.ManifestURLKey, urlutil.SanitizeURL(playlistURL)))

	logger := xglog.WithComponentFromContext(ctx, "hls")
	res, err := r.resolve(ctx, logger, playlistURL, visited, 0)
	span.SetAttributes(attribute.Int(telemetry.SegmentCountKey, len(res.Segments)))
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, logger zerolog.Logger, playlistURL string, visited Visited, depth int) (manifest.Result, error) {
	if _, seen := visited[playlistURL]; seen {
		logger.Warn().
			Str(xglog.FieldEvent, "hls.cycle_detected").
			Str(xglog.FieldManifestURL, urlutil.SanitizeURL(playlistURL)).
			Msg("playlist already visited in this chain, skipping")
		return manifest.Result{}, nil
	}
	if depth > r.maxDepth {
		logger.Warn().
			Str(xglog.FieldEvent, "hls.depth_exceeded").
			Int("depth", depth).
			Str(xglog.FieldManifestURL, urlutil.SanitizeURL(playlistURL)).
			Msg("variant indirection too deep, giving up")
		return manifest.Result{}, nil
	}
	visited[playlistURL] = struct{}{}

	text, err := fetch.GetText(ctx, r.fetcher, playlistURL)
	if err != nil {
		return manifest.Result{}, fmt.Errorf("fetch playlist: %w", err)
	}

	pl := ParsePlaylist(text, playlistURL)
	res := manifest.Result{
		Segments: pl.Segments,
		Metadata: manifest.Metadata{
			TotalDuration: pl.TotalDuration,
			NameHint:      pl.NameHint,
		},
	}

	if pl.IsMaster() {
		ranked := append([]Variant(nil), pl.Variants...)
		manifest.RankVariants(ranked, func(v Variant) manifest.Candidate {
			return manifest.Candidate{Bandwidth: v.Info.Bandwidth, Width: v.Info.Width, Height: v.Info.Height}
		})
		best := ranked[0]
		logger.Debug().
			Str(xglog.FieldEvent, "hls.variant_selected").
			Int("variants", len(ranked)).
			Int64(xglog.FieldBandwidth, best.Info.Bandwidth).
			Str(xglog.FieldResolution, best.Info.Resolution).
			Msg("following best variant")

		nested, err := r.resolve(ctx, logger, best.URL, visited, depth+1)
		if err != nil {
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "hls.variant_fetch_failed").
				Str(xglog.FieldManifestURL, urlutil.SanitizeURL(best.URL)).
				Msg("variant playlist could not be fetched")
		}
		res = mergeNested(res, best, nested)
	}

	if res.Metadata.MimeType == "" {
		res.Metadata.MimeType = inferMime(res.Segments, pl.HasMap)
	}
	return res, nil
}

// mergeNested combines a master playlist's view with its resolved variant.
func mergeNested(master manifest.Result, chosen Variant, nested manifest.Result) manifest.Result {
	out := manifest.Result{
		Segments: nested.Segments,
		Metadata: manifest.Metadata{
			TotalDuration: nested.Metadata.TotalDuration,
			NameHint:      nested.Metadata.NameHint,
			MimeType:      nested.Metadata.MimeType,
		},
	}
	info := chosen.Info
	if nested.Metadata.VariantInfo != nil {
		info = info.Merge(*nested.Metadata.VariantInfo)
	}
	out.Metadata.VariantInfo = &info
	if out.Metadata.NameHint == "" {
		out.Metadata.NameHint = master.Metadata.NameHint
	}
	return out
}

func inferMime(segments []manifest.Segment, hasMap bool) string {
	if len(segments) > 0 {
		if m, ok := manifest.MimeFromURL(segments[0].URL); ok {
			return m
		}
	}
	if hasMap {
		return manifest.DefaultMimeType
	}
	return manifest.TransportStream
}
