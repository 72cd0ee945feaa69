// SPDX-License-Identifier: MIT

// Package urlutil resolves manifest references and expands segment URL templates.
package urlutil

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// SanitizeURL removes user info and query from a URL string for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}

// Resolve resolves ref against base. It never fails: references that cannot
// be resolved are returned unchanged, and scheme-relative references fall back
// to https when the base is unusable.
func Resolve(ref, base string) string {
	return ResolveWithScheme(ref, base, "https")
}

// ResolveWithScheme is Resolve with an explicit fallback scheme for
// scheme-relative ("//host/path") references.
func ResolveWithScheme(ref, base, scheme string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}
	refURL, err := url.Parse(ref)
	if err == nil {
		baseURL, berr := url.Parse(base)
		if berr == nil && baseURL.IsAbs() {
			return baseURL.ResolveReference(refURL).String()
		}
		if refURL.IsAbs() {
			return refURL.String()
		}
	}
	if strings.HasPrefix(ref, "//") {
		if scheme == "" {
			scheme = "https"
		}
		return scheme + ":" + ref
	}
	return ref
}

// Dir returns the directory part of a URL (everything up to and including the
// last slash of the path), dropping query and fragment.
func Dir(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.LastIndex(rawURL, "/"); i >= 0 {
			return rawURL[:i+1]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		dir := path.Dir(u.Path)
		if dir == "." {
			dir = ""
		}
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		u.Path = dir
		u.RawPath = ""
	}
	return u.String()
}

// Ext returns the lower-cased file extension of the URL path, including the
// leading dot, or "" if there is none.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// ExpandTemplate substitutes $Name$ and $Name%0Wd$ identifiers in tmpl with
// values from vars. "$$" is an escaped dollar sign. Unknown identifiers expand
// to the empty string and an unterminated identifier is copied verbatim.
func ExpandTemplate(tmpl string, vars map[string]any) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '$')
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		token := tmpl[i+1 : i+1+end]
		i += end + 2
		if token == "" {
			b.WriteByte('$')
			continue
		}
		name, format, _ := strings.Cut(token, "%")
		b.WriteString(formatValue(vars[name], format))
	}
	return b.String()
}

func formatValue(v any, format string) string {
	var (
		digits  string
		numeric bool
	)
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int:
		digits, numeric = strconv.FormatInt(int64(n), 10), true
	case int32:
		digits, numeric = strconv.FormatInt(int64(n), 10), true
	case int64:
		digits, numeric = strconv.FormatInt(n, 10), true
	case uint:
		digits, numeric = strconv.FormatUint(uint64(n), 10), true
	case uint32:
		digits, numeric = strconv.FormatUint(uint64(n), 10), true
	case uint64:
		digits, numeric = strconv.FormatUint(n, 10), true
	case float64:
		digits, numeric = strconv.FormatFloat(n, 'f', -1, 64), true
	default:
		return ""
	}
	if !numeric || format == "" {
		return digits
	}
	return pad(digits, widthOf(format))
}

// widthOf extracts W from "0Wd", "Wd" or "d". Anything unparsable yields 0.
func widthOf(format string) int {
	format = strings.TrimSuffix(format, "d")
	format = strings.TrimLeft(format, "0")
	if format == "" {
		return 0
	}
	w, err := strconv.Atoi(format)
	if err != nil || w < 0 {
		return 0
	}
	return w
}

func pad(digits string, width int) string {
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	if n := width - len(digits); n > 0 {
		if neg {
			n--
		}
		if n > 0 {
			digits = strings.Repeat("0", n) + digits
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}
