// SPDX-License-Identifier: MIT

package engine

import "time"

// Progress returns done/total*100, or 0 when total is 0.
func Progress(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// ETA is the smaller of two remaining-time estimates: pace per segment, and
// pace per byte against the estimated total size. The byte candidate is only
// used when estimatedSize is known and bytes have arrived. nil means unknown.
func ETA(elapsed time.Duration, done, total int, downloadedBytes int64, estimatedSize *int64) *time.Duration {
	var best *time.Duration
	consider := func(d time.Duration) {
		if d < 0 {
			d = 0
		}
		if best == nil || d < *best {
			best = &d
		}
	}

	if done > 0 && elapsed >= 0 {
		perSegment := float64(elapsed) / float64(done)
		consider(time.Duration(perSegment * float64(total-done)))
	}
	if estimatedSize != nil && downloadedBytes > 0 && elapsed > 0 {
		remaining := float64(*estimatedSize - downloadedBytes)
		consider(time.Duration(remaining * float64(elapsed) / float64(downloadedBytes)))
	}
	return best
}
