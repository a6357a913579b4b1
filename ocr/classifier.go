package ocr

import (
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// DocumentClassifier decides whether a PDF carries a usable text layer.
type DocumentClassifier struct {
	extractor   TextExtractor
	samplePages int
	threshold   int
}

// NewDocumentClassifier samples the first samplePages pages and classifies the
// document as text-based when the stripped text exceeds threshold characters.
func NewDocumentClassifier(extractor TextExtractor, samplePages, threshold int) *DocumentClassifier {
	if samplePages <= 0 {
		samplePages = 3
	}
	if threshold <= 0 {
		threshold = 100
	}
	return &DocumentClassifier{
		extractor:   extractor,
		samplePages: samplePages,
		threshold:   threshold,
	}
}

// Classify never fails: parser errors classify as image-based so content is OCRed
// rather than silently lost.
func (c *DocumentClassifier) Classify(data []byte) DocumentType {
	if c.extractor == nil {
		log.Warn("No text extractor available, assuming image-based PDF")
		return DocumentImageBased
	}

	texts, err := c.extractor.PageTexts(data, c.samplePages)
	if err != nil {
		log.WithError(err).Warn("Could not read PDF text layer, assuming image-based PDF")
		return DocumentImageBased
	}

	sample := strings.TrimSpace(strings.Join(texts, ""))
	chars := utf8.RuneCountInString(sample)
	log.WithFields(logrus.Fields{
		"sampled_pages": len(texts),
		"characters":    chars,
	}).Debug("Sampled PDF text layer")

	if chars > c.threshold {
		return DocumentTextBased
	}
	return DocumentImageBased
}
