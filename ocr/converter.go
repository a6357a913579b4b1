package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// documentConverter is one of the two conversion strategies.
type documentConverter interface {
	Accepts(kind inputKind) bool
	Convert(ctx context.Context, doc *document) (*ConversionResult, error)
}

func (o *Orchestrator) converterFor(docType DocumentType) (documentConverter, error) {
	switch docType {
	case DocumentTextBased:
		return textBasedConverter{o: o}, nil
	case DocumentImageBased:
		return imageBasedConverter{o: o}, nil
	default:
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
}

// textBasedConverter reads the PDF text layer. It never calls a vision model.
type textBasedConverter struct {
	o *Orchestrator
}

func (c textBasedConverter) Accepts(kind inputKind) bool {
	return kind == inputPDF
}

func (c textBasedConverter) Convert(ctx context.Context, doc *document) (*ConversionResult, error) {
	start := time.Now()
	texts, err := c.o.extractor.PageTexts(doc.data, 0)
	if err != nil || len(texts) == 0 {
		log.WithError(err).Warn("Text layer extraction failed, falling back to OCR")
		return imageBasedConverter(c).Convert(ctx, doc)
	}

	records := make([]PageRecord, 0, len(texts))
	methods := make([]string, 0, len(texts))
	for i := range texts {
		texts[i] = strings.TrimSpace(texts[i])
		records = append(records, PageRecord{
			Page:       i + 1,
			Method:     MethodTextLayer,
			TextLength: utf8.RuneCountInString(texts[i]),
		})
		methods = append(methods, MethodTextLayer)
	}
	elapsed := time.Since(start).Seconds()

	return &ConversionResult{
		Markdown: joinPages(texts),
		Metadata: map[string]any{
			"document_type":             string(DocumentTextBased),
			"total_pages":               len(texts),
			"pages":                     records,
			"processing_methods":        methods,
			"vision_calls":              0,
			"average_page_time_seconds": elapsed / float64(len(texts)),
		},
	}, nil
}

// imageBasedConverter OCRs every page image.
type imageBasedConverter struct {
	o *Orchestrator
}

func (c imageBasedConverter) Accepts(kind inputKind) bool {
	return kind == inputPDF || kind == inputImage
}

func (c imageBasedConverter) Convert(ctx context.Context, doc *document) (*ConversionResult, error) {
	o := c.o
	var pages [][]byte
	if doc.kind == inputImage {
		pages = [][]byte{doc.data}
	} else {
		if o.rasterizer == nil {
			return nil, ErrRasterizerUnavailable
		}
		var err error
		pages, err = o.rasterizer.Rasterize(ctx, doc.data)
		if err != nil {
			return nil, err
		}
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	models := o.availableModels(ctx)
	texts := make([]string, 0, len(pages))
	records := make([]PageRecord, 0, len(pages))
	methods := make([]string, 0, len(pages))
	qualities := make([]QualityMetrics, 0, len(pages))
	visionCalls := 0
	var pageTime time.Duration

	for i, raw := range pages {
		text, rec, err := o.processPage(ctx, i+1, raw, models)
		if err != nil {
			return nil, err
		}
		// Pages fail softly, a cancelled document does not
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("conversion aborted after page %d: %w", i+1, err)
		}
		texts = append(texts, text)
		records = append(records, rec)
		methods = append(methods, rec.Method)
		if rec.Quality != nil {
			qualities = append(qualities, *rec.Quality)
		}
		visionCalls += rec.VisionCalls
		pageTime += rec.Elapsed
	}

	return &ConversionResult{
		Markdown: joinPages(texts),
		Metadata: map[string]any{
			"document_type":             string(DocumentImageBased),
			"total_pages":               len(pages),
			"pages":                     records,
			"processing_methods":        methods,
			"quality_metrics":           qualities,
			"vision_calls":              visionCalls,
			"average_page_time_seconds": pageTime.Seconds() / float64(len(pages)),
			"optimization_settings":     o.optimizationSettings(),
		},
	}, nil
}

// processPage runs the per-page decision chain: cache, local OCR, ranked vision
// models (whole image or segmented), local OCR fallback. A page that yields no
// text is reported as failed, not returned as an error.
func (o *Orchestrator) processPage(ctx context.Context, pageNum int, raw []byte, models []string) (string, PageRecord, error) {
	start := time.Now()
	rec := PageRecord{Page: pageNum}
	logger := log.WithField("page", pageNum)

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", rec, fmt.Errorf("error decoding page %d: %w", pageNum, err)
	}

	tier := TierModerate
	timeout := o.config.DefaultTimeout
	if o.config.EnableQualityAssessment {
		q := o.assess(img)
		rec.Quality = &q
		tier = SelectTier(q.QualityScore)
		timeout = AdaptiveTimeout(q.QualityScore)
		logger.WithFields(logrus.Fields{
			"quality_score": q.QualityScore,
			"tier":          tier,
		}).Debug("Assessed page quality")
	}

	enhanced := o.enhancer.Enhance(img, tier)
	optimized, err := encodeJPEG(enhanced, o.config.CompressionQuality)
	if err != nil {
		logger.WithError(err).Warn("Could not encode optimized image, using original")
		optimized = raw
	}
	rec.CacheKey = contentKey(optimized)

	finish := func(text, method string) (string, PageRecord, error) {
		rec.Method = method
		rec.TextLength = utf8.RuneCountInString(text)
		rec.Elapsed = time.Since(start)
		rec.ElapsedSecs = rec.Elapsed.Seconds()
		if method != MethodCached && method != MethodFailed {
			o.cache.Put(rec.CacheKey, text)
		}
		logger.WithFields(logrus.Fields{
			"method":  method,
			"chars":   rec.TextLength,
			"elapsed": rec.Elapsed,
		}).Info("Processed page")
		return text, rec, nil
	}

	if text, ok := o.cache.Get(rec.CacheKey); ok {
		return finish(text, MethodCached)
	}

	if o.config.EnableLocalOCR && o.local != nil {
		text, err := o.local.Extract(ctx, optimized)
		text = strings.TrimSpace(text)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Local OCR failed")
		case utf8.RuneCountInString(text) > o.config.LocalOCRMinLength:
			return finish(text, MethodLocalOCR)
		default:
			logger.WithField("chars", utf8.RuneCountInString(text)).Debug("Local OCR result too short, trying vision models")
		}
	}

	ranked := o.rankModels(models)
	var vr visionResult
	if len(ranked) == 0 {
		logger.WithError(ErrNoModels).Warn("Skipping vision OCR")
	} else if o.segmenter.NeedsSegmentation(enhanced) {
		vr = o.segmentedVision(ctx, enhanced, ranked, timeout)
	} else {
		vr = o.wholeImageVision(ctx, optimized, ranked, timeout)
	}
	o.tracker.Apply(vr.outcomes)
	rec.VisionCalls = len(vr.outcomes)
	rec.Segments = vr.segments
	if vr.text != "" {
		return finish(vr.text, vr.method)
	}

	if o.config.FallbackToLocalOCR && o.local != nil {
		text, err := o.local.Extract(ctx, optimized)
		text = strings.TrimSpace(text)
		if err != nil {
			logger.WithError(err).Warn("Local OCR fallback failed")
		} else if text != "" {
			return finish(text, MethodLocalOCRFallback)
		}
	}

	logger.Warn("No text extracted from page")
	return finish("", MethodFailed)
}

// visionResult is the fan-in of all vision attempts for one page.
type visionResult struct {
	text     string
	method   string
	segments int
	outcomes []AttemptOutcome
}

func (o *Orchestrator) wholeImageVision(ctx context.Context, img []byte, models []string, timeout time.Duration) visionResult {
	text, model, outcomes := o.attemptModels(ctx, img, models, timeout)
	vr := visionResult{text: text, outcomes: outcomes}
	if text != "" {
		vr.method = MethodVisionPrefix + model
	}
	return vr
}

// segmentedVision OCRs each grid cell through the ranked chain, in parallel on a
// bounded pool when enabled. Each worker writes only its own result slot.
func (o *Orchestrator) segmentedVision(ctx context.Context, img image.Image, models []string, timeout time.Duration) visionResult {
	segments, err := o.segmenter.Split(img)
	if err != nil {
		log.WithError(err).Warn("Could not segment page image")
		return visionResult{}
	}

	type segmentResult struct {
		SegmentText
		outcomes []AttemptOutcome
	}
	results := make([]segmentResult, len(segments))
	run := func(i int) {
		seg := segments[i]
		text, model, outcomes := o.attemptModels(ctx, seg.Image, models, timeout)
		results[i] = segmentResult{
			SegmentText: SegmentText{Index: seg.Index, Text: text, Model: model},
			outcomes:    outcomes,
		}
	}

	if o.config.EnableParallel && len(segments) > 1 {
		var g errgroup.Group
		g.SetLimit(max(1, o.config.MaxWorkers))
		for i := range segments {
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range segments {
			run(i)
		}
	}

	vr := visionResult{segments: len(segments)}
	texts := make([]SegmentText, 0, len(results))
	var used []string
	seen := map[string]bool{}
	for _, r := range results {
		vr.outcomes = append(vr.outcomes, r.outcomes...)
		texts = append(texts, r.SegmentText)
		if r.Model != "" && !seen[r.Model] {
			seen[r.Model] = true
			used = append(used, r.Model)
		}
	}
	vr.text = CombineSegments(texts)
	if vr.text != "" {
		vr.method = MethodVisionPrefix + strings.Join(used, "+") + MethodSegmentedSuffix
	}
	log.WithFields(logrus.Fields{
		"segments": len(segments),
		"models":   used,
	}).Debug("Combined segment results")
	return vr
}

// attemptModels tries models in order and stops at the first one that returns
// text. Every attempt made is reported in outcomes.
func (o *Orchestrator) attemptModels(ctx context.Context, img []byte, models []string, timeout time.Duration) (string, string, []AttemptOutcome) {
	var outcomes []AttemptOutcome
	for _, model := range models {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		text, err := o.vision.Attempt(ctx, img, model, timeout)
		elapsed := time.Since(start)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = &AttemptError{Model: model, Err: ErrEmptyResponse}
		}
		if err != nil {
			log.WithFields(logrus.Fields{
				"model":   model,
				"elapsed": elapsed,
			}).WithError(err).Warn("Vision model attempt failed")
			outcomes = append(outcomes, AttemptOutcome{Model: model, Duration: elapsed, Err: err})
			continue
		}
		outcomes = append(outcomes, AttemptOutcome{Model: model, Success: true, Duration: elapsed})
		return text, model, outcomes
	}
	return "", "", outcomes
}
