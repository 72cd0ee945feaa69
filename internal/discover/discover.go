// SPDX-License-Identifier: MIT

// Package discover performs a one-shot rescan of a web page for manifest and
// media URLs, feeding the same path as passively observed requests.
package discover

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ManuGH/streamgrab/internal/core/urlutil"
	"github.com/ManuGH/streamgrab/internal/fetch"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

// Page is the result of scanning one document.
type Page struct {
	Title string
	URLs  []string
}

var urlAttrs = map[string]bool{
	"src":      true,
	"href":     true,
	"data-src": true,
	"data-url": true,
	"data-hls": true,
	"data-mpd": true,
	"content":  true,
}

// inlineURL finds absolute manifest URLs inside scripts and text, including
// JSON-escaped ones.
var inlineURL = regexp.MustCompile(`https?:(?:\\?/){2}[^\s"'<>` + "`" + `]+?\.(?:m3u8|mpd)(?:\?[^\s"'<>` + "`" + `]*)?`)

// Scan fetches pageURL and extracts candidate URLs.
func Scan(ctx context.Context, fetcher fetch.Retriever, pageURL string) (Page, error) {
	text, err := fetch.GetText(ctx, fetcher, pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}
	return Parse(strings.NewReader(text), pageURL), nil
}

// Parse walks an HTML document. Only URLs recognised by manifest.DetectFormat
// are kept, in first-seen order and without duplicates.
func Parse(r io.Reader, pageURL string) Page {
	var (
		page    Page
		base    = pageURL
		seen    = map[string]bool{}
		inTitle bool
		inText  bool
		title   strings.Builder
	)
	add := func(ref string) {
		ref = strings.TrimSpace(strings.ReplaceAll(ref, `\/`, "/"))
		if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
			return
		}
		abs := urlutil.Resolve(html.UnescapeString(ref), base)
		if _, ok := manifest.DetectFormat(abs); !ok || seen[abs] {
			return
		}
		seen[abs] = true
		page.URLs = append(page.URLs, abs)
	}

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			page.Title = strings.Join(strings.Fields(title.String()), " ")
			return page
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = page.Title == "" && title.Len() == 0
			case atom.Script, atom.Noscript:
				inText = true
			case atom.Base:
				for _, a := range tok.Attr {
					if a.Key == "href" && a.Val != "" {
						base = urlutil.Resolve(a.Val, pageURL)
					}
				}
			}
			for _, a := range tok.Attr {
				if urlAttrs[a.Key] {
					add(a.Val)
				}
			}
		case html.EndTagToken:
			switch z.Token().DataAtom {
			case atom.Title:
				inTitle = false
			case atom.Script, atom.Noscript:
				inText = false
			}
		case html.TextToken:
			data := string(z.Text())
			if inTitle {
				title.WriteString(data)
				continue
			}
			if inText || strings.Contains(data, "http") {
				for _, m := range inlineURL.FindAllString(data, -1) {
					add(m)
				}
			}
		}
	}
}
