// SPDX-License-Identifier: MIT

package manifest

import (
	"strings"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
)

// Default container used when nothing better is known.
const (
	DefaultMimeType  = "video/mp4"
	DefaultExtension = ".mp4"
	TransportStream  = "video/mp2t"
)

var mimeByExt = map[string]string{
	".ts":   TransportStream,
	".m2ts": TransportStream,
	".mp4":  "video/mp4",
	".m4s":  "video/mp4",
	".m4v":  "video/mp4",
	".cmfv": "video/mp4",
	".m4a":  "audio/mp4",
	".cmfa": "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
}

var extByMime = map[string]string{
	TransportStream:    ".ts",
	"video/mp4":        ".mp4",
	"audio/mp4":        ".m4a",
	"audio/aac":        ".aac",
	"audio/mpeg":       ".mp3",
	"video/webm":       ".webm",
	"audio/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/quicktime":  ".mov",
}

// MimeFromURL guesses a container MIME type from a segment URL's extension.
func MimeFromURL(rawURL string) (string, bool) {
	m, ok := mimeByExt[urlutil.Ext(rawURL)]
	return m, ok
}

// ExtensionForMime maps a MIME type (parameters ignored) to a file extension.
func ExtensionForMime(mime string) (string, bool) {
	mime, _, _ = strings.Cut(mime, ";")
	ext, ok := extByMime[strings.ToLower(strings.TrimSpace(mime))]
	return ext, ok
}

// ExtensionFromURL returns the URL's extension if it is a known media container.
func ExtensionFromURL(rawURL string) (string, bool) {
	ext := urlutil.Ext(rawURL)
	if _, ok := mimeByExt[ext]; !ok {
		return "", false
	}
	if ext == ".m4s" || ext == ".cmfv" {
		return ".mp4", true
	}
	if ext == ".cmfa" {
		return ".m4a", true
	}
	return ext, true
}
