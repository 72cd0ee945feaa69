// SPDX-License-Identifier: MIT

// Package playlist renders session content as playlists: an extended M3U
// index of surfaced streams and a VOD m3u8 for one resolved segment list.
package playlist

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Item is one entry of the stream index.
type Item struct {
	Title    string
	URL      string
	Group    string
	Duration float64 // seconds; <= 0 writes -1
}

// WriteM3U writes an extended M3U listing items in order.
func WriteM3U(w io.Writer, items []Item) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, it := range items {
		dur := "-1"
		if it.Duration > 0 {
			dur = fmt.Sprintf("%.0f", it.Duration)
		}
		fmt.Fprintf(buf, "#EXTINF:%s group-title=%q,%s\n", dur, it.Group, oneLine(it.Title))
		buf.WriteString(it.URL + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
