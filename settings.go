package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/goagiq/mcp-markitdown-ui/ocr"
)

const ocrPromptFile = "ocr_prompt.tmpl"

var defaultOcrPrompt = constants.DefaultOCRPrompt + ` The text is likely in {{.Language}}.`

// settings is the process configuration read from the environment.
type settings struct {
	OCR              ocr.Config
	TesseractLangs   []string
	PerformanceStore string
	PerformancePath  string
	JobWorkers       int
	JobQueueSize     int
}

// envReader reads typed values from a getenv function and remembers the
// first malformed one.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return b
}

func (r *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		r.fail(key, v)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		r.fail(key, v)
		return def
	}
	return f
}

func (r *envReader) fail(key, value string) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid value %q for %s", value, key)
	}
}

// loadSettings builds the configuration from getenv, starting from ocr.DefaultConfig.
func loadSettings(getenv func(string) string) (settings, error) {
	r := &envReader{getenv: getenv}
	config := ocr.DefaultConfig()

	config.VisionProvider = strings.ToLower(r.str("VISION_LLM_PROVIDER", config.VisionProvider))
	if config.VisionProvider == "ollama" {
		config.VisionBaseURL = r.str("OLLAMA_HOST", config.VisionBaseURL)
	} else {
		config.VisionBaseURL = r.str("VISION_BASE_URL", "")
	}
	config.VisionAPIToken = r.str("VISION_API_TOKEN", "")
	if r.getenv("GOOGLEAI_THINKING_BUDGET") != "" {
		budget := int32(r.integer("GOOGLEAI_THINKING_BUDGET", 0))
		config.VisionThinkingBudget = &budget
	}
	if models := parseList(r.getenv("VISION_MODELS")); len(models) > 0 {
		config.VisionModels = models
	}
	config.RequestsPerMinute = r.float("VISION_REQUESTS_PER_MINUTE", 0)
	config.MaxRetries = r.integer("VISION_MAX_RETRIES", 3)
	config.FilterUnavailableModels = r.boolean("FILTER_UNAVAILABLE_MODELS", false)

	config.MaxImageSize = r.integer("MAX_IMAGE_SIZE", config.MaxImageSize)
	config.CompressionQuality = r.integer("COMPRESSION_QUALITY", config.CompressionQuality)
	config.UseGrayscale = r.boolean("USE_GRAYSCALE", config.UseGrayscale)
	config.RasterDPI = r.float("RASTER_DPI", config.RasterDPI)

	config.EnableParallel = r.boolean("ENABLE_PARALLEL", config.EnableParallel)
	config.MaxWorkers = r.integer("MAX_WORKERS", config.MaxWorkers)
	config.SegmentSize = r.integer("SEGMENT_SIZE", config.SegmentSize)

	config.EnableLocalOCR = r.boolean("ENABLE_LOCAL_OCR", config.EnableLocalOCR)
	config.FallbackToLocalOCR = r.boolean("FALLBACK_TO_LOCAL_OCR", config.FallbackToLocalOCR)

	config.EnableCaching = r.boolean("ENABLE_CACHING", config.EnableCaching)
	config.CacheDir = r.str("OCR_CACHE_DIR", config.CacheDir)
	config.EnableSmartModelSelection = r.boolean("ENABLE_SMART_MODEL_SELECTION", config.EnableSmartModelSelection)
	config.EnableQualityAssessment = r.boolean("ENABLE_QUALITY_ASSESSMENT", config.EnableQualityAssessment)

	s := settings{
		OCR:              config,
		TesseractLangs:   parseList(r.str("TESSERACT_LANGUAGES", "eng")),
		PerformanceStore: strings.ToLower(r.str("MODEL_PERFORMANCE_STORE", "json")),
		JobWorkers:       r.integer("JOB_WORKERS", 1),
		JobQueueSize:     r.integer("JOB_QUEUE_SIZE", 100),
	}
	switch s.PerformanceStore {
	case "json":
		s.PerformancePath = r.str("MODEL_PERFORMANCE_PATH", "model_performance.json")
	case "sqlite":
		s.PerformancePath = r.str("MODEL_PERFORMANCE_PATH", filepath.Join("db", "model_performance.db"))
	case "none":
	default:
		r.fail("MODEL_PERFORMANCE_STORE", s.PerformanceStore)
	}
	if r.err != nil {
		return settings{}, r.err
	}
	return s, nil
}

// parseList splits a comma separated value, dropping empty entries.
func parseList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadOCRPrompt renders the OCR prompt template from dir, writing the default
// template there first if it does not exist yet.
func loadOCRPrompt(dir, language string) (string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create prompts directory: %w", err)
	}

	path := filepath.Join(dir, ocrPromptFile)
	content, err := os.ReadFile(path)
	if err != nil {
		log.Infof("Could not read %s, using default template: %v", path, err)
		content = []byte(defaultOcrPrompt)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return "", fmt.Errorf("failed to write default OCR template to disk: %w", err)
		}
	}

	tmpl, err := template.New("ocr").Funcs(sprig.FuncMap()).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse OCR template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, map[string]any{"Language": language}); err != nil {
		return "", fmt.Errorf("failed to render OCR template: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
