// SPDX-License-Identifier: MIT

package playlist

import (
	"errors"
	"fmt"
	"io"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamgrab/internal/manifest"
)

// ErrNoMediaSegments is returned when there is nothing to list.
var ErrNoMediaSegments = errors.New("no media segments")

// WriteM3U8 encodes segments as a closed VOD media playlist. An init segment
// becomes EXT-X-MAP for the media segments that follow it; a later init
// segment also marks a discontinuity. Unknown durations are written as 0.
func WriteM3U8(w io.Writer, segments []manifest.Segment) error {
	media := 0
	for _, s := range segments {
		if !s.Init {
			media++
		}
	}
	if media == 0 {
		return ErrNoMediaSegments
	}

	p, err := m3u8.NewMediaPlaylist(0, uint(media))
	if err != nil {
		return fmt.Errorf("create playlist: %w", err)
	}
	p.MediaType = m3u8.VOD

	var pendingMap string
	appended := 0
	for _, s := range segments {
		if s.Init {
			pendingMap = s.URL
			continue
		}
		dur := 0.0
		if s.Duration != nil {
			dur = *s.Duration
		}
		if err := p.Append(s.URL, dur, ""); err != nil {
			return fmt.Errorf("append segment: %w", err)
		}
		if pendingMap != "" {
			if appended == 0 {
				p.SetDefaultMap(pendingMap, 0, 0)
			} else {
				if err := p.SetMap(pendingMap, 0, 0); err != nil {
					return fmt.Errorf("set map: %w", err)
				}
				if err := p.SetDiscontinuity(); err != nil {
					return fmt.Errorf("set discontinuity: %w", err)
				}
			}
			pendingMap = ""
		}
		appended++
	}
	p.Close()

	_, err = w.Write(p.Encode().Bytes())
	return err
}
