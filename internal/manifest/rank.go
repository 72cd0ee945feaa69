// SPDX-License-Identifier: MIT

package manifest

import (
	"cmp"
	"slices"
)

// ContentKind orders representation media types; higher is preferred.
type ContentKind int

const (
	ContentOther ContentKind = iota
	ContentAudio
	ContentVideo
)

// Candidate is one selectable rendition.
type Candidate struct {
	Bandwidth int64
	Width     int
	Height    int
	Kind      ContentKind
}

func (c Candidate) area() int64 {
	return int64(c.Width) * int64(c.Height)
}

// RankVariants stably sorts HLS variants: bandwidth descending, then
// resolution area descending. Missing values count as zero.
func RankVariants[T any](items []T, candidate func(T) Candidate) {
	slices.SortStableFunc(items, func(a, b T) int {
		ca, cb := candidate(a), candidate(b)
		if c := cmp.Compare(cb.Bandwidth, ca.Bandwidth); c != 0 {
			return c
		}
		return cmp.Compare(cb.area(), ca.area())
	})
}

// RankRepresentations stably sorts DASH representations: content kind
// (video > audio > other), then resolution area, then bandwidth, all descending.
func RankRepresentations[T any](items []T, candidate func(T) Candidate) {
	slices.SortStableFunc(items, func(a, b T) int {
		ca, cb := candidate(a), candidate(b)
		if c := cmp.Compare(cb.Kind, ca.Kind); c != 0 {
			return c
		}
		if c := cmp.Compare(cb.area(), ca.area()); c != 0 {
			return c
		}
		return cmp.Compare(cb.Bandwidth, ca.Bandwidth)
	})
}
