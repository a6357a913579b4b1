package ocr

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// Rasterizer renders every page of a PDF to an encoded image, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([][]byte, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	dpi float64
	// libmupdf contexts are not safe for concurrent use
	mu sync.Mutex
}

// NewFitzRasterizer renders pages at the given resolution; 72 DPI is a zoom factor of 1.0.
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = 72
	}
	return &FitzRasterizer{dpi: dpi}
}

func (r *FitzRasterizer) Rasterize(ctx context.Context, data []byte) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open PDF for rendering: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, ErrNoPages
	}

	pages := make([][]byte, 0, total)
	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(n, r.dpi)
		if err != nil {
			return nil, &RasterizeError{Page: n + 1, Err: err}
		}
		log.WithFields(logrus.Fields{
			"page":  n + 1,
			"bytes": len(img),
			"dpi":   r.dpi,
		}).Debug("Rendered page")
		pages = append(pages, img)
	}
	return pages, nil
}

// ValidatePDF checks the document structure and returns its page count.
func ValidatePDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	if pages == 0 {
		return 0, ErrNoPages
	}
	return pages, nil
}
