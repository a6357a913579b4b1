package ocr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a vision model answers with no usable text.
	ErrEmptyResponse = errors.New("empty response from vision model")
	// ErrNoModels is returned when the ranked model list is empty.
	ErrNoModels = errors.New("no vision models configured")
	// ErrLocalOCRUnavailable is returned when local OCR is enabled but no engine was supplied.
	ErrLocalOCRUnavailable = errors.New("local OCR engine unavailable")
	// ErrRasterizerUnavailable is returned when no rasterizer could be constructed.
	ErrRasterizerUnavailable = errors.New("PDF rasterizer unavailable")
	// ErrNoPages is returned when a document has no pages to process.
	ErrNoPages = errors.New("document has no pages")
)

// UnsupportedFormatError is returned when the input is neither a PDF nor an image.
type UnsupportedFormatError struct {
	Extension string
	MIMEType  string
}

func (e *UnsupportedFormatError) Error() string {
	parts := []string{"unsupported format"}
	if e.Extension != "" {
		parts = append(parts, fmt.Sprintf("extension=%q", e.Extension))
	}
	if e.MIMEType != "" {
		parts = append(parts, fmt.Sprintf("mime=%q", e.MIMEType))
	}
	return strings.Join(parts, " ")
}

// IsUnsupportedFormat reports whether the error is an UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var target *UnsupportedFormatError
	return errors.As(err, &target)
}

// AttemptError describes a failed attempt against one vision model.
type AttemptError struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s: status %d: %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// RasterizeError is returned when a page cannot be rendered. It is fatal to the document.
type RasterizeError struct {
	Page int
	Err  error
}

func (e *RasterizeError) Error() string {
	return fmt.Sprintf("rasterize page %d: %v", e.Page, e.Err)
}

func (e *RasterizeError) Unwrap() error {
	return e.Err
}
