// SPDX-License-Identifier: MIT

package engine

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/streamgrab/internal/manifest"
)

// MaxFileStem is the longest file name before the extension.
const MaxFileStem = 80

// FileName derives a safe file name from a title: accents are folded to
// their base letter, anything outside [A-Za-z0-9-_.] becomes '_', and the
// result is cut to MaxFileStem characters before ext is appended.
func FileName(title, ext string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if safeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	stem := b.String()
	if len(stem) > MaxFileStem {
		stem = stem[:MaxFileStem]
	}
	if strings.Trim(stem, "_.") == "" {
		stem = "video"
	}
	return stem + ext
}

func safeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '.'
}

// DefaultTitle is used when neither the page nor the manifest names a stream.
func DefaultTitle(seq int) string {
	return "Video " + strconv.Itoa(seq)
}

// Container picks the output MIME type and extension: an explicit MIME type
// first, then the first media segment's extension, then the default.
func Container(meta manifest.Metadata, segments []manifest.Segment) (string, string) {
	if meta.MimeType != "" {
		if ext, ok := manifest.ExtensionForMime(meta.MimeType); ok {
			return meta.MimeType, ext
		}
	}
	for _, s := range segments {
		if s.Init {
			continue
		}
		if ext, ok := manifest.ExtensionFromURL(s.URL); ok {
			mime, _ := manifest.MimeFromURL(s.URL)
			if mime == "" {
				mime = manifest.DefaultMimeType
			}
			return mime, ext
		}
		break
	}
	return manifest.DefaultMimeType, manifest.DefaultExtension
}
