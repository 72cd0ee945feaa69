package hls

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

const (
	tagStreamInf = "#EXT-X-STREAM-INF:"
	tagInf       = "#EXTINF:"
	tagMap       = "#EXT-X-MAP:"
	tagMedia     = "#EXT-X-MEDIA:"
)

// Variant is one #EXT-X-STREAM-INF entry of a master playlist.
type Variant struct {
	URL        string
	Attributes map[string]string
	Info       manifest.VariantInfo
}

// Playlist is the outcome of a single pass over playlist text.
type Playlist struct {
	Segments      []manifest.Segment
	Variants      []Variant
	NameHint      string
	TotalDuration *float64
	HasMap        bool
}

// IsMaster reports whether the playlist only references variants.
func (p Playlist) IsMaster() bool {
	return len(p.Segments) == 0 && len(p.Variants) > 0
}

// ParsePlaylist walks playlist text line by line. Relative references are
// resolved against baseURL. It never fails: unknown tags are skipped and any
// other non-blank, non-tag line is a media segment.
func ParsePlaylist(text, baseURL string) Playlist {
	var (
		pl              Playlist
		pendingDuration *float64
		pendingVariant  map[string]string
		expectVariant   bool
		pendingInit     string
		total           float64
		sawDuration     bool
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, tagStreamInf):
				pendingVariant = ParseAttributes(strings.TrimPrefix(line, tagStreamInf))
				expectVariant = true
			case strings.HasPrefix(line, tagInf):
				pendingDuration = parseInf(strings.TrimPrefix(line, tagInf))
			case strings.HasPrefix(line, tagMap):
				attrs := ParseAttributes(strings.TrimPrefix(line, tagMap))
				if uri := attrs["URI"]; uri != "" {
					pendingInit = urlutil.Resolve(uri, baseURL)
					pl.HasMap = true
				}
			case strings.HasPrefix(line, tagMedia):
				if pl.NameHint == "" {
					pl.NameHint = ParseAttributes(strings.TrimPrefix(line, tagMedia))["NAME"]
				}
			}
			// everything else (#EXTM3U, #EXT-X-VERSION, #EXT-X-TARGETDURATION,
			// #EXT-X-ENDLIST, #EXT-X-KEY, comments, ...) is informational
			continue
		}

		ref := urlutil.Resolve(line, baseURL)
		if expectVariant {
			pl.Variants = append(pl.Variants, newVariant(ref, pendingVariant))
			pendingVariant = nil
			expectVariant = false
			continue
		}

		if pendingInit != "" {
			pl.Segments = append(pl.Segments, manifest.Segment{URL: pendingInit, Duration: manifest.Seconds(0), Init: true})
			pendingInit = ""
		}
		pl.Segments = append(pl.Segments, manifest.Segment{URL: ref, Duration: pendingDuration})
		if pendingDuration != nil {
			total += *pendingDuration
			sawDuration = true
		}
		pendingDuration = nil
	}

	if sawDuration {
		pl.TotalDuration = manifest.Seconds(total)
	}
	return pl
}

// parseInf reads "10.010,title" and returns the duration, or nil when malformed.
func parseInf(body string) *float64 {
	durPart, _, _ := strings.Cut(body, ",")
	secs, err := strconv.ParseFloat(strings.TrimSpace(durPart), 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}

func newVariant(ref string, attrs map[string]string) Variant {
	if attrs == nil {
		attrs = map[string]string{}
	}
	info := manifest.VariantInfo{
		Name:   attrs["NAME"],
		Codecs: attrs["CODECS"],
	}
	if res := attrs["RESOLUTION"]; res != "" {
		info.Width, info.Height = manifest.ParseResolution(res)
		if info.Width > 0 && info.Height > 0 {
			info.Resolution = res
		}
	}
	info.Bandwidth, _ = strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
	info.AverageBandwidth, _ = strconv.ParseInt(attrs["AVERAGE-BANDWIDTH"], 10, 64)
	info.FrameRate, _ = strconv.ParseFloat(attrs["FRAME-RATE"], 64)
	return Variant{URL: ref, Attributes: attrs, Info: info}
}
