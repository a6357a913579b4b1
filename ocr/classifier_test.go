package ocr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeExtractor returns fixed page texts and records the page limit it was asked for.
type fakeExtractor struct {
	texts    []string
	err      error
	maxPages []int
}

func (f *fakeExtractor) PageTexts(data []byte, maxPages int) ([]string, error) {
	f.maxPages = append(f.maxPages, maxPages)
	if f.err != nil {
		return nil, f.err
	}
	if maxPages > 0 && maxPages < len(f.texts) {
		return append([]string(nil), f.texts[:maxPages]...), nil
	}
	return append([]string(nil), f.texts...), nil
}

func TestDocumentClassifier(t *testing.T) {
	tests := []struct {
		name      string
		extractor TextExtractor
		expected  DocumentType
	}{
		{
			name:      "rich text layer",
			extractor: &fakeExtractor{texts: []string{strings.Repeat("a", 60), strings.Repeat("b", 60)}},
			expected:  DocumentTextBased,
		},
		{
			name:      "exactly at threshold",
			extractor: &fakeExtractor{texts: []string{strings.Repeat("a", 100)}},
			expected:  DocumentImageBased,
		},
		{
			name:      "one over threshold",
			extractor: &fakeExtractor{texts: []string{strings.Repeat("a", 101)}},
			expected:  DocumentTextBased,
		},
		{
			name:      "whitespace does not count",
			extractor: &fakeExtractor{texts: []string{"   \n\n  ", strings.Repeat("x", 50) + "\n\n\n"}},
			expected:  DocumentImageBased,
		},
		{
			name:      "text beyond the sampled pages is ignored",
			extractor: &fakeExtractor{texts: []string{"", "", "", strings.Repeat("a", 500)}},
			expected:  DocumentImageBased,
		},
		{
			name:      "multibyte characters counted once",
			extractor: &fakeExtractor{texts: []string{strings.Repeat("ü", 101)}},
			expected:  DocumentTextBased,
		},
		{
			name:      "parser error",
			extractor: &fakeExtractor{err: errors.New("malformed xref")},
			expected:  DocumentImageBased,
		},
		{
			name:      "no extractor",
			extractor: nil,
			expected:  DocumentImageBased,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classifier := NewDocumentClassifier(tc.extractor, 3, 100)
			assert.Equal(t, tc.expected, classifier.Classify([]byte("%PDF-1.4")))
		})
	}
}

func TestDocumentClassifier_SamplesThreePagesByDefault(t *testing.T) {
	extractor := &fakeExtractor{texts: []string{"a"}}
	NewDocumentClassifier(extractor, 0, 0).Classify(nil)
	assert.Equal(t, []int{3}, extractor.maxPages)
}

func TestPDFTextExtractor_InvalidInput(t *testing.T) {
	_, err := NewPDFTextExtractor().PageTexts([]byte("definitely not a pdf"), 0)
	assert.Error(t, err)
}

func TestValidatePDF_InvalidInput(t *testing.T) {
	_, err := ValidatePDF([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
