package ocr

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Segmenter splits oversized page images into a grid of cells.
type Segmenter struct {
	size    int
	quality int
}

// NewSegmenter creates a segmenter for cells of roughly size pixels, encoded as
// JPEG at the given quality.
func NewSegmenter(size, quality int) *Segmenter {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Segmenter{size: size, quality: quality}
}

// NeedsSegmentation reports whether the largest dimension of img exceeds the cell size.
func (s *Segmenter) NeedsSegmentation(img image.Image) bool {
	if s.size <= 0 {
		return false
	}
	b := img.Bounds()
	return max(b.Dx(), b.Dy()) > s.size
}

// Split crops img into rows×cols segments tagged with index row*cols+col.
func (s *Segmenter) Split(img image.Image) ([]ImageSegment, error) {
	rects := SegmentBounds(img.Bounds(), s.size)
	segments := make([]ImageSegment, 0, len(rects))
	for i, r := range rects {
		data, err := encodeJPEG(imaging.Crop(img, r), s.quality)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, ImageSegment{Index: i, Bounds: r, Image: data})
	}
	return segments, nil
}

// SegmentBounds tiles bounds with a uniform grid. The last row and column absorb
// any remainder so the cells cover bounds exactly, without gaps or overlaps.
func SegmentBounds(bounds image.Rectangle, size int) []image.Rectangle {
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}
	if size <= 0 {
		return []image.Rectangle{bounds}
	}

	cols := max(1, width/size)
	rows := max(1, height/size)
	cellW := width / cols
	cellH := height / rows

	rects := make([]image.Rectangle, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			left := col * cellW
			top := row * cellH
			right := left + cellW
			if col == cols-1 {
				right = width
			}
			bottom := top + cellH
			if row == rows-1 {
				bottom = height
			}
			rects = append(rects, image.Rect(left, top, right, bottom).Add(bounds.Min))
		}
	}
	return rects
}

// SegmentText is the OCR output of one segment.
type SegmentText struct {
	Index int
	Text  string
	Model string
}

// CombineSegments orders results by segment index, regardless of completion
// order, and joins the non-blank texts with a blank line.
func CombineSegments(results []SegmentText) string {
	ordered := append([]SegmentText(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	parts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		if text := strings.TrimSpace(r.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
