package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/sirupsen/logrus"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVisionClient sets the vision OCR client. Without it one is created from the config.
func WithVisionClient(c VisionClient) Option {
	return func(o *Orchestrator) { o.vision = c }
}

// WithLocalEngine sets the local OCR engine.
func WithLocalEngine(e LocalOCREngine) Option {
	return func(o *Orchestrator) { o.local = e }
}

func WithRasterizer(r Rasterizer) Option {
	return func(o *Orchestrator) { o.rasterizer = r }
}

func WithTextExtractor(e TextExtractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

func WithCache(c *ResultCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func WithTracker(t *ModelPerformanceTracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithQualityAssessor replaces AssessQuality.
func WithQualityAssessor(fn func(image.Image) QualityMetrics) Option {
	return func(o *Orchestrator) { o.assess = fn }
}

// WithPDFValidator replaces ValidatePDF.
func WithPDFValidator(fn func([]byte) (int, error)) Option {
	return func(o *Orchestrator) { o.validate = fn }
}

// Orchestrator converts documents to text, choosing per document and per page
// between the text layer, the result cache, local OCR and vision models.
type Orchestrator struct {
	config     Config
	vision     VisionClient
	local      LocalOCREngine
	rasterizer Rasterizer
	extractor  TextExtractor
	classifier *DocumentClassifier
	enhancer   *ImageEnhancer
	segmenter  *Segmenter
	cache      *ResultCache
	tracker    *ModelPerformanceTracker
	assess     func(image.Image) QualityMetrics
	validate   func([]byte) (int, error)
}

// NewOrchestrator wires the pipeline. Components not supplied through opts are
// built from config.
func NewOrchestrator(config Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{config: config}
	for _, opt := range opts {
		opt(o)
	}

	if o.vision == nil {
		client, err := NewVisionClient(config)
		if err != nil {
			return nil, fmt.Errorf("error creating vision client: %w", err)
		}
		o.vision = client
	}
	if (config.EnableLocalOCR || config.FallbackToLocalOCR) && o.local == nil {
		return nil, ErrLocalOCRUnavailable
	}
	if o.rasterizer == nil {
		o.rasterizer = NewFitzRasterizer(config.RasterDPI)
	}
	if o.extractor == nil {
		o.extractor = NewPDFTextExtractor()
	}
	if o.cache == nil && config.EnableCaching {
		o.cache = NewResultCache(config.CacheDir)
	}
	if o.tracker == nil {
		o.tracker = NewModelPerformanceTracker(nil)
	}
	if o.assess == nil {
		o.assess = AssessQuality
	}
	if o.validate == nil {
		o.validate = ValidatePDF
	}
	if len(o.config.VisionModels) == 0 {
		o.config.VisionModels = append([]string(nil), constants.DefaultVisionModels...)
	}
	if o.config.CompressionQuality <= 0 || o.config.CompressionQuality > 100 {
		o.config.CompressionQuality = 85
	}
	if o.config.DefaultTimeout <= 0 {
		o.config.DefaultTimeout = 120 * time.Second
	}
	if o.config.LocalOCRMinLength <= 0 {
		o.config.LocalOCRMinLength = 50
	}

	o.classifier = NewDocumentClassifier(o.extractor, config.ClassifierPages, config.TextThreshold)
	o.enhancer = NewImageEnhancer(config.MaxImageSize, config.UseGrayscale)
	o.segmenter = NewSegmenter(config.SegmentSize, o.config.CompressionQuality)

	log.WithFields(logrus.Fields{
		"models":          o.config.VisionModels,
		"local_ocr":       config.EnableLocalOCR,
		"fallback":        config.FallbackToLocalOCR,
		"caching":         o.cache.Enabled(),
		"smart_selection": config.EnableSmartModelSelection,
		"parallel":        config.EnableParallel,
	}).Info("OCR orchestrator ready")
	return o, nil
}

// inputKind is the family of a document after format detection.
type inputKind int

const (
	inputPDF inputKind = iota + 1
	inputImage
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

var imageMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// document is one Convert call's input.
type document struct {
	data []byte
	info StreamInfo
	kind inputKind
}

// Convert extracts the text of a PDF or image. Page-level failures are reported
// in the metadata; only document-level failures return an error.
func (o *Orchestrator) Convert(ctx context.Context, data []byte, info StreamInfo) (*ConversionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	kind, err := detectInput(data, info)
	if err != nil {
		return nil, err
	}
	doc := &document{data: data, info: info, kind: kind}

	logger := log.WithFields(logrus.Fields{
		"filename": info.Filename,
		"size":     len(data),
	})

	docType := DocumentImageBased
	if kind == inputPDF {
		pages, err := o.validate(data)
		if err != nil {
			return nil, err
		}
		docType = o.classifier.Classify(data)
		logger.WithFields(logrus.Fields{
			"pages":         pages,
			"document_type": docType,
		}).Info("Classified PDF")
	}

	converter, err := o.converterFor(docType)
	if err != nil {
		return nil, err
	}
	if !converter.Accepts(kind) {
		return nil, &UnsupportedFormatError{Extension: info.Extension, MIMEType: info.MIMEType}
	}

	result, err := converter.Convert(ctx, doc)
	if err != nil {
		return nil, err
	}
	result.Metadata["total_time_seconds"] = time.Since(start).Seconds()
	if info.Filename != "" {
		result.Metadata["filename"] = info.Filename
	}
	logger.WithFields(logrus.Fields{
		"document_type": result.Metadata["document_type"],
		"elapsed":       time.Since(start),
	}).Info("Converted document")
	return result, nil
}

// ConvertFile reads path and converts it.
func (o *Orchestrator) ConvertFile(ctx context.Context, path string) (*ConversionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return o.Convert(ctx, data, StreamInfo{
		Filename:  filepath.Base(path),
		Extension: filepath.Ext(path),
	})
}

// Close persists the model performance history.
func (o *Orchestrator) Close() error {
	if err := o.tracker.Save(); err != nil {
		return fmt.Errorf("error saving model performance: %w", err)
	}
	return nil
}

// detectInput trusts the caller's extension and MIME type first and sniffs the
// content only when neither identifies the format.
func detectInput(data []byte, info StreamInfo) (inputKind, error) {
	ext := strings.ToLower(info.Extension)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(info.Filename))
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	mime := strings.ToLower(info.MIMEType)

	switch {
	case ext == ".pdf" || mime == "application/pdf":
		return inputPDF, nil
	case imageExtensions[ext] || imageMIMETypes[mime]:
		return inputImage, nil
	}

	if ext == "" && mime == "" {
		detected := mimetype.Detect(data)
		switch {
		case detected.Is("application/pdf"):
			return inputPDF, nil
		case imageExtensions[detected.Extension()]:
			return inputImage, nil
		}
		mime = detected.String()
	}
	return 0, &UnsupportedFormatError{Extension: ext, MIMEType: mime}
}

// AdaptiveTimeout gives lower quality images more time.
func AdaptiveTimeout(score float64) time.Duration {
	switch {
	case score < 30:
		return 180 * time.Second
	case score < 70:
		return 120 * time.Second
	default:
		return 90 * time.Second
	}
}

// ModelStatus describes one configured model for reporting.
type ModelStatus struct {
	Name        string                 `json:"name"`
	Available   *bool                  `json:"available,omitempty"`
	Score       float64                `json:"score"`
	Performance ModelPerformanceRecord `json:"performance"`
}

// ModelStatuses lists the configured models in ranked order with their history.
func (o *Orchestrator) ModelStatuses(ctx context.Context) []ModelStatus {
	models := o.rankModels(o.config.VisionModels)

	var installed map[string]bool
	if lister, ok := o.vision.(ModelLister); ok {
		names, err := lister.ListModels(ctx)
		if err != nil {
			log.WithError(err).Warn("Could not list installed models")
		} else {
			installed = make(map[string]bool, len(names))
			for _, n := range names {
				installed[n] = true
			}
		}
	}

	statuses := make([]ModelStatus, 0, len(models))
	for _, m := range models {
		rec, _ := o.tracker.Record(m)
		status := ModelStatus{Name: m, Score: rec.Score(), Performance: rec}
		if installed != nil {
			available := modelInstalled(m, installed)
			status.Available = &available
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// availableModels drops configured models the server does not report. If the
// list cannot be fetched, or nothing would remain, the configured list is kept.
func (o *Orchestrator) availableModels(ctx context.Context) []string {
	models := o.config.VisionModels
	if !o.config.FilterUnavailableModels {
		return models
	}
	lister, ok := o.vision.(ModelLister)
	if !ok {
		return models
	}
	names, err := lister.ListModels(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not list installed models, trying all configured models")
		return models
	}
	installed := make(map[string]bool, len(names))
	for _, n := range names {
		installed[n] = true
	}
	filtered := make([]string, 0, len(models))
	for _, m := range models {
		if modelInstalled(m, installed) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		log.WithField("installed", names).Warn("None of the configured vision models are installed, trying all of them")
		return models
	}
	return filtered
}

// modelInstalled treats "llava" and "llava:latest" as the same model.
func modelInstalled(model string, installed map[string]bool) bool {
	if installed[model] {
		return true
	}
	if base, ok := strings.CutSuffix(model, ":latest"); ok {
		return installed[base]
	}
	if !strings.Contains(model, ":") {
		return installed[model+":latest"]
	}
	return false
}

func (o *Orchestrator) rankModels(models []string) []string {
	if !o.config.EnableSmartModelSelection {
		return append([]string(nil), models...)
	}
	return o.tracker.Rank(models)
}

// optimizationSettings is reported with every image-based conversion.
func (o *Orchestrator) optimizationSettings() map[string]any {
	return map[string]any{
		"max_image_size":               o.config.MaxImageSize,
		"compression_quality":          o.config.CompressionQuality,
		"use_grayscale":                o.config.UseGrayscale,
		"enable_parallel":              o.config.EnableParallel,
		"max_workers":                  o.config.MaxWorkers,
		"segment_size":                 o.config.SegmentSize,
		"enable_local_ocr":             o.config.EnableLocalOCR,
		"fallback_to_local_ocr":        o.config.FallbackToLocalOCR,
		"enable_caching":               o.cache.Enabled(),
		"enable_smart_model_selection": o.config.EnableSmartModelSelection,
		"enable_quality_assessment":    o.config.EnableQualityAssessment,
	}
}

// joinPages concatenates page texts with numbered page break markers.
func joinPages(texts []string) string {
	var sb strings.Builder
	for i, t := range texts {
		if i > 0 {
			sb.WriteString(fmt.Sprintf(constants.PageMarkerFormat, i+1))
		}
		sb.WriteString(t)
	}
	return sb.String()
}
