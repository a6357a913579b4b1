package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentBounds_Grid(t *testing.T) {
	rects := SegmentBounds(image.Rect(0, 0, 2000, 1600), 800)
	require.Len(t, rects, 4)
	assert.Equal(t, image.Rect(0, 0, 1000, 800), rects[0])
	assert.Equal(t, image.Rect(1000, 0, 2000, 800), rects[1])
	assert.Equal(t, image.Rect(0, 800, 1000, 1600), rects[2])
	assert.Equal(t, image.Rect(1000, 800, 2000, 1600), rects[3])
}

func TestSegmentBounds_Remainder(t *testing.T) {
	rects := SegmentBounds(image.Rect(0, 0, 2500, 900), 800)
	require.Len(t, rects, 3)
	assert.Equal(t, 833, rects[0].Dx())
	assert.Equal(t, 833, rects[1].Dx())
	assert.Equal(t, 834, rects[2].Dx())
	for _, r := range rects {
		assert.Equal(t, 900, r.Dy())
	}
}

func TestSegmentBounds_Tiling(t *testing.T) {
	tests := []struct {
		w, h, size int
	}{
		{2000, 1600, 800},
		{801, 801, 800},
		{1999, 3001, 800},
		{300, 5000, 800},
		{4096, 4096, 1000},
		{50, 50, 800},
	}
	for _, tc := range tests {
		bounds := image.Rect(10, 20, 10+tc.w, 20+tc.h)
		rects := SegmentBounds(bounds, tc.size)
		require.NotEmpty(t, rects)

		area := 0
		for i, r := range rects {
			assert.True(t, r.In(bounds), "segment %d %v outside %v", i, r, bounds)
			area += r.Dx() * r.Dy()
			for j := i + 1; j < len(rects); j++ {
				assert.True(t, r.Intersect(rects[j]).Empty(), "segments %d and %d overlap", i, j)
			}
		}
		assert.Equal(t, tc.w*tc.h, area, "%dx%d size %d", tc.w, tc.h, tc.size)
	}
}

func TestSegmenter_NeedsSegmentation(t *testing.T) {
	s := NewSegmenter(800, 85)
	assert.False(t, s.NeedsSegmentation(image.NewGray(image.Rect(0, 0, 800, 800))))
	assert.True(t, s.NeedsSegmentation(image.NewGray(image.Rect(0, 0, 801, 10))))
	assert.True(t, s.NeedsSegmentation(image.NewGray(image.Rect(0, 0, 10, 1200))))
	assert.False(t, NewSegmenter(0, 85).NeedsSegmentation(image.NewGray(image.Rect(0, 0, 5000, 5000))))
}

func TestSegmenter_Split(t *testing.T) {
	segments, err := NewSegmenter(100, 85).Split(solidImage(250, 120, color.White))
	require.NoError(t, err)
	require.Len(t, segments, 2)

	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
		img, err := jpeg.Decode(bytes.NewReader(seg.Image))
		require.NoError(t, err)
		assert.Equal(t, seg.Bounds.Dx(), img.Bounds().Dx())
		assert.Equal(t, seg.Bounds.Dy(), img.Bounds().Dy())
	}
	assert.Equal(t, 125, segments[0].Bounds.Dx())
	assert.Equal(t, 120, segments[1].Bounds.Dy())
}

func TestCombineSegments(t *testing.T) {
	tests := []struct {
		name     string
		results  []SegmentText
		expected string
	}{
		{
			name: "empty segment dropped",
			results: []SegmentText{
				{Index: 0, Text: "A"}, {Index: 1, Text: ""}, {Index: 2, Text: "C"}, {Index: 3, Text: "D"},
			},
			expected: "A\n\nC\n\nD",
		},
		{
			name: "completion order ignored",
			results: []SegmentText{
				{Index: 3, Text: "D"}, {Index: 0, Text: "A"}, {Index: 2, Text: "C"}, {Index: 1, Text: "B"},
			},
			expected: "A\n\nB\n\nC\n\nD",
		},
		{
			name:     "whitespace trimmed",
			results:  []SegmentText{{Index: 1, Text: "  second \n"}, {Index: 0, Text: "\tfirst"}, {Index: 2, Text: " \n "}},
			expected: "first\n\nsecond",
		},
		{
			name:     "nothing recognized",
			results:  []SegmentText{{Index: 0}, {Index: 1}},
			expected: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CombineSegments(tc.results))
		})
	}
}
