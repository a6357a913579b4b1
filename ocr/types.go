package ocr

import (
	"image"
	"time"
)

// StreamInfo identifies the input document. It is supplied by the caller and never modified.
type StreamInfo struct {
	Filename  string
	Extension string
	MIMEType  string
}

// ConversionResult is the output of a single Convert call.
type ConversionResult struct {
	Markdown string         `json:"markdown"`
	Metadata map[string]any `json:"metadata"`
}

// DocumentType is the classification of a PDF.
type DocumentType string

const (
	DocumentTextBased  DocumentType = "text-based"
	DocumentImageBased DocumentType = "image-based"
)

// QualityMetrics describes how OCR-friendly a rasterized page is.
type QualityMetrics struct {
	Resolution   int     `json:"resolution"`
	Contrast     float64 `json:"contrast"`
	Brightness   float64 `json:"brightness"`
	Sharpness    float64 `json:"sharpness"`
	TextDensity  float64 `json:"text_density"`
	NoiseLevel   float64 `json:"noise_level"`
	QualityScore float64 `json:"quality_score"`
}

// ImageSegment is one cell of a segmented page image.
type ImageSegment struct {
	Index  int
	Bounds image.Rectangle
	Image  []byte
}

// Processing methods recorded per page.
const (
	MethodCached           = "cached"
	MethodLocalOCR         = "local-ocr"
	MethodLocalOCRFallback = "local-ocr-fallback"
	MethodVisionPrefix     = "vision-ocr:"
	MethodSegmentedSuffix  = "-segmented"
	MethodFailed           = "failed"
	MethodTextLayer        = "text-layer"
)

// PageRecord is the processing summary of one page.
type PageRecord struct {
	Page        int             `json:"page"`
	Method      string          `json:"method"`
	Elapsed     time.Duration   `json:"-"`
	ElapsedSecs float64         `json:"elapsed_seconds"`
	Quality     *QualityMetrics `json:"quality,omitempty"`
	Segments    int             `json:"segments,omitempty"`
	VisionCalls int             `json:"vision_calls"`
	TextLength  int             `json:"text_length"`
	CacheKey    string          `json:"cache_key,omitempty"`
}

// AttemptOutcome is the result of a single vision model attempt. Workers hand these
// back to the page owner, which applies them to the performance tracker.
type AttemptOutcome struct {
	Model    string
	Success  bool
	Duration time.Duration
	Err      error
}
