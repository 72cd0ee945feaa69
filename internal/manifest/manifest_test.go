// SPDX-License-Identifier: MIT

package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url    string
		want   Format
		wantOK bool
	}{
		{"https://cdn.example.com/live/master.m3u8", FormatHLS, true},
		{"https://cdn.example.com/live/master.M3U8?token=abc", FormatHLS, true},
		{"https://cdn.example.com/vod/manifest.mpd", FormatDASH, true},
		{"https://cdn.example.com/vod/manifest.mpd?x=1", FormatDASH, true},
		{"https://cdn.example.com/clip.mp4", FormatDirect, true},
		{"https://cdn.example.com/master.m3u8.json", "", false},
		{"https://cdn.example.com/page.html", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectFormat(tt.url)
		assert.Equal(t, tt.wantOK, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestRankVariants_BandwidthThenAreaStable(t *testing.T) {
	type v struct {
		id string
		c  Candidate
	}
	items := []v{
		{"a", Candidate{Bandwidth: 500000}},
		{"b", Candidate{Bandwidth: 1200000, Width: 640, Height: 360}},
		{"c", Candidate{Bandwidth: 800000}},
		{"d", Candidate{Bandwidth: 1200000, Width: 1280, Height: 720}},
		{"e", Candidate{}},
		{"f", Candidate{}},
	}
	RankVariants(items, func(x v) Candidate { return x.c })

	var got []string
	for _, it := range items {
		got = append(got, it.id)
	}
	assert.Equal(t, []string{"d", "b", "c", "a", "e", "f"}, got)
}

func TestRankRepresentations_ContentKindFirst(t *testing.T) {
	items := []Candidate{
		{Kind: ContentAudio, Bandwidth: 9000000},
		{Kind: ContentVideo, Bandwidth: 100000, Width: 640, Height: 360},
		{Kind: ContentVideo, Bandwidth: 50000, Width: 1920, Height: 1080},
		{Kind: ContentOther, Bandwidth: 99999999},
	}
	RankRepresentations(items, func(c Candidate) Candidate { return c })

	assert.Equal(t, 1920, items[0].Width)
	assert.Equal(t, 640, items[1].Width)
	assert.Equal(t, ContentAudio, items[2].Kind)
	assert.Equal(t, ContentOther, items[3].Kind)
}

func TestVariantInfoMerge_NestedWins(t *testing.T) {
	outer := VariantInfo{Name: "outer", Bandwidth: 100, Codecs: "avc1"}
	nested := VariantInfo{Bandwidth: 200, Resolution: "1280x720", Width: 1280, Height: 720}

	got := outer.Merge(nested)
	assert.Equal(t, "outer", got.Name)
	assert.Equal(t, int64(200), got.Bandwidth)
	assert.Equal(t, "avc1", got.Codecs)
	assert.Equal(t, int64(1280*720), got.Area())
}

func TestParseResolution(t *testing.T) {
	w, h := ParseResolution("1920x1080")
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	w, h = ParseResolution("garbage")
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestContainerHelpers(t *testing.T) {
	m, ok := MimeFromURL("https://x/seg1.ts?x=1")
	assert.True(t, ok)
	assert.Equal(t, TransportStream, m)

	ext, ok := ExtensionForMime("video/mp4; codecs=avc1")
	assert.True(t, ok)
	assert.Equal(t, ".mp4", ext)

	ext, ok = ExtensionFromURL("https://x/chunk-1.m4s")
	assert.True(t, ok)
	assert.Equal(t, ".mp4", ext)

	_, ok = ExtensionFromURL("https://x/thumb.jpg")
	assert.False(t, ok)
}
