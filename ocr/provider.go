package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// VisionClient sends one image to one named vision model and returns the extracted text.
// Implementations must return an error for non-2xx responses, undecodable bodies and
// empty results so the caller can advance to the next model.
type VisionClient interface {
	Attempt(ctx context.Context, image []byte, model string, timeout time.Duration) (string, error)
}

// ModelLister is implemented by vision clients that can report which models are installed.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// LocalOCREngine is a synchronous, network-free OCR engine.
type LocalOCREngine interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// Config holds the OCR pipeline configuration
type Config struct {
	// Vision provider type ("ollama", "openai", "mistral", "googleai")
	VisionProvider string
	// Base URL of the vision endpoint (Ollama host or OpenAI-compatible base URL)
	VisionBaseURL string
	// API token; sent as a bearer token to Ollama and as API key to OpenAI/Mistral/Gemini
	VisionAPIToken string
	// Gemini thinking budget in tokens; nil leaves the model default
	VisionThinkingBudget *int32
	// Ordered fallback chain of vision models
	VisionModels []string
	// Extraction instruction sent with every image
	VisionPrompt string
	// Vision request rate limit; 0 disables limiting
	RequestsPerMinute float64
	// HTTP retries per attempt for transient errors
	MaxRetries int
	// Restrict the chain to models the server reports as installed
	FilterUnavailableModels bool

	// Image preparation
	MaxImageSize       int
	CompressionQuality int
	UseGrayscale       bool
	RasterDPI          float64

	// Segmentation
	EnableParallel bool
	MaxWorkers     int
	SegmentSize    int

	// Local OCR
	EnableLocalOCR     bool
	FallbackToLocalOCR bool
	LocalOCRMinLength  int

	// Caching and model ranking
	EnableCaching             bool
	CacheDir                  string
	EnableSmartModelSelection bool
	EnableQualityAssessment   bool

	// Classification
	TextThreshold   int
	ClassifierPages int
	DefaultTimeout  time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		VisionProvider:            "ollama",
		VisionBaseURL:             constants.DefaultOllamaHost,
		VisionModels:              append([]string(nil), constants.DefaultVisionModels...),
		VisionPrompt:              constants.DefaultOCRPrompt,
		MaxImageSize:              800,
		CompressionQuality:        85,
		UseGrayscale:              true,
		RasterDPI:                 72,
		EnableParallel:            true,
		MaxWorkers:                4,
		SegmentSize:               800,
		EnableLocalOCR:            true,
		FallbackToLocalOCR:        true,
		LocalOCRMinLength:         50,
		EnableCaching:             true,
		CacheDir:                  "ocr_cache",
		EnableSmartModelSelection: true,
		EnableQualityAssessment:   true,
		TextThreshold:             100,
		ClassifierPages:           3,
		DefaultTimeout:            120 * time.Second,
	}
}

// NewVisionClient creates the vision client selected by config.VisionProvider
func NewVisionClient(config Config) (VisionClient, error) {
	log.Info("Initializing vision OCR client: ", config.VisionProvider)

	switch strings.ToLower(config.VisionProvider) {
	case "", "ollama":
		if config.VisionBaseURL == "" {
			return nil, fmt.Errorf("missing required Ollama host")
		}
		log.WithField("url", config.VisionBaseURL).Info("Using Ollama vision client")
		return NewOllamaClient(config), nil

	case "openai", "mistral", "googleai":
		log.WithFields(logrus.Fields{
			"provider": config.VisionProvider,
			"url":      config.VisionBaseURL,
		}).Info("Using LLM vision client")
		client, err := newLLMVisionClient(config)
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", config.VisionProvider)
	}
}

// SetLogLevel sets the logging level for the OCR package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
