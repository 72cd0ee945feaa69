// SPDX-License-Identifier: MIT

package dash

import (
	"html"
	"regexp"
	"strings"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

var (
	mediaAttr    = regexp.MustCompile(`media="([^"]+)"`)
	presentation = regexp.MustCompile(`mediaPresentationDuration="([^"]+)"`)
	titleElement = regexp.MustCompile(`<Title[^>]*>([^<]+)</Title>`)
	titleAttr    = regexp.MustCompile(`\btitle="([^"]+)"`)
	idAttr       = regexp.MustCompile(`<MPD\b[^>]*\bid="([^"]+)"`)
)

// Fallback extracts media references from manifest text without parsing it
// as XML. Attribute values mentioning "init" are skipped. It never fails and
// may return zero segments.
func Fallback(text, manifestURL string) manifest.Result {
	base := urlutil.Dir(manifestURL)

	var res manifest.Result
	for _, m := range mediaAttr.FindAllStringSubmatch(text, -1) {
		ref := html.UnescapeString(m[1])
		if strings.Contains(strings.ToLower(ref), "init") {
			continue
		}
		res.Segments = append(res.Segments, manifest.Segment{URL: urlutil.Resolve(ref, base)})
	}

	if m := presentation.FindStringSubmatch(text); m != nil {
		if secs, ok := ParseDuration(m[1]); ok {
			res.Metadata.TotalDuration = manifest.Seconds(secs)
		}
	}
	for _, re := range []*regexp.Regexp{titleElement, titleAttr, idAttr} {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := strings.TrimSpace(html.UnescapeString(m[1])); name != "" {
				res.Metadata.NameHint = name
				break
			}
		}
	}
	if len(res.Segments) > 0 {
		res.Metadata.MimeType = manifest.DefaultMimeType
		if m, ok := manifest.MimeFromURL(res.Segments[0].URL); ok {
			res.Metadata.MimeType = m
		}
	}
	return res
}
