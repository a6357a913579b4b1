package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/goagiq/mcp-markitdown-ui/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := loadSettings(mapEnv(nil))
	require.NoError(t, err)

	defaults := ocr.DefaultConfig()
	assert.Equal(t, "ollama", s.OCR.VisionProvider)
	assert.Equal(t, constants.DefaultOllamaHost, s.OCR.VisionBaseURL)
	assert.Equal(t, constants.DefaultVisionModels, s.OCR.VisionModels)
	assert.Equal(t, defaults.MaxImageSize, s.OCR.MaxImageSize)
	assert.Equal(t, defaults.CompressionQuality, s.OCR.CompressionQuality)
	assert.True(t, s.OCR.EnableLocalOCR)
	assert.True(t, s.OCR.EnableCaching)
	assert.False(t, s.OCR.FilterUnavailableModels)
	assert.Equal(t, 3, s.OCR.MaxRetries)
	assert.Equal(t, 120*time.Second, s.OCR.DefaultTimeout)
	assert.Equal(t, []string{"eng"}, s.TesseractLangs)
	assert.Equal(t, "json", s.PerformanceStore)
	assert.Equal(t, "model_performance.json", s.PerformancePath)
	assert.Equal(t, 1, s.JobWorkers)
	assert.Equal(t, 100, s.JobQueueSize)
}

func TestLoadSettings_Overrides(t *testing.T) {
	s, err := loadSettings(mapEnv(map[string]string{
		"OLLAMA_HOST":                  "http://ollama:11434",
		"VISION_MODELS":                " llava:13b , minicpm-v ,,",
		"VISION_API_TOKEN":             "secret",
		"VISION_REQUESTS_PER_MINUTE":   "30",
		"VISION_MAX_RETRIES":           "0",
		"FILTER_UNAVAILABLE_MODELS":    "true",
		"MAX_IMAGE_SIZE":               "0",
		"COMPRESSION_QUALITY":          "70",
		"USE_GRAYSCALE":                "false",
		"RASTER_DPI":                   "150",
		"ENABLE_PARALLEL":              "0",
		"MAX_WORKERS":                  "8",
		"SEGMENT_SIZE":                 "1024",
		"ENABLE_LOCAL_OCR":             "false",
		"FALLBACK_TO_LOCAL_OCR":        "FALSE",
		"TESSERACT_LANGUAGES":          "eng,deu",
		"ENABLE_CACHING":               "false",
		"OCR_CACHE_DIR":                "/tmp/cache",
		"ENABLE_SMART_MODEL_SELECTION": "false",
		"ENABLE_QUALITY_ASSESSMENT":    "false",
		"MODEL_PERFORMANCE_STORE":      "SQLite",
		"JOB_WORKERS":                  "4",
	}))
	require.NoError(t, err)

	c := s.OCR
	assert.Equal(t, "http://ollama:11434", c.VisionBaseURL)
	assert.Equal(t, []string{"llava:13b", "minicpm-v"}, c.VisionModels)
	assert.Equal(t, "secret", c.VisionAPIToken)
	assert.Equal(t, 30.0, c.RequestsPerMinute)
	assert.Equal(t, 0, c.MaxRetries)
	assert.True(t, c.FilterUnavailableModels)
	assert.Equal(t, 0, c.MaxImageSize)
	assert.Equal(t, 70, c.CompressionQuality)
	assert.False(t, c.UseGrayscale)
	assert.Equal(t, 150.0, c.RasterDPI)
	assert.False(t, c.EnableParallel)
	assert.Equal(t, 8, c.MaxWorkers)
	assert.Equal(t, 1024, c.SegmentSize)
	assert.False(t, c.EnableLocalOCR)
	assert.False(t, c.FallbackToLocalOCR)
	assert.False(t, c.EnableCaching)
	assert.Equal(t, "/tmp/cache", c.CacheDir)
	assert.False(t, c.EnableSmartModelSelection)
	assert.False(t, c.EnableQualityAssessment)
	assert.Equal(t, []string{"eng", "deu"}, s.TesseractLangs)
	assert.Equal(t, "sqlite", s.PerformanceStore)
	assert.Equal(t, filepath.Join("db", "model_performance.db"), s.PerformancePath)
	assert.Equal(t, 4, s.JobWorkers)
}

func TestLoadSettings_OpenAIProvider(t *testing.T) {
	s, err := loadSettings(mapEnv(map[string]string{
		"VISION_LLM_PROVIDER": "OpenAI",
		"OLLAMA_HOST":         "http://ignored:11434",
		"VISION_BASE_URL":     "http://vllm:8000/v1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "openai", s.OCR.VisionProvider)
	assert.Equal(t, "http://vllm:8000/v1", s.OCR.VisionBaseURL)
	assert.Nil(t, s.OCR.VisionThinkingBudget)
}

func TestLoadSettings_GoogleAIProvider(t *testing.T) {
	s, err := loadSettings(mapEnv(map[string]string{
		"VISION_LLM_PROVIDER":      "googleai",
		"VISION_API_TOKEN":         "gemini-key",
		"VISION_MODELS":            "gemini-2.5-flash",
		"GOOGLEAI_THINKING_BUDGET": "1024",
	}))
	require.NoError(t, err)
	assert.Equal(t, "googleai", s.OCR.VisionProvider)
	assert.Empty(t, s.OCR.VisionBaseURL)
	assert.Equal(t, "gemini-key", s.OCR.VisionAPIToken)
	assert.Equal(t, []string{"gemini-2.5-flash"}, s.OCR.VisionModels)
	require.NotNil(t, s.OCR.VisionThinkingBudget)
	assert.Equal(t, int32(1024), *s.OCR.VisionThinkingBudget)
}

func TestLoadSettings_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"ENABLE_CACHING", "sometimes"},
		{"MAX_WORKERS", "four"},
		{"SEGMENT_SIZE", "-1"},
		{"RASTER_DPI", "high"},
		{"GOOGLEAI_THINKING_BUDGET", "lots"},
		{"MODEL_PERFORMANCE_STORE", "redis"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			_, err := loadSettings(mapEnv(map[string]string{tc.key: tc.value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList(""))
	assert.Nil(t, parseList(" , ,"))
	assert.Equal(t, []string{"a", "b c"}, parseList("a, b c ,"))
}

func TestLoadOCRPrompt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")

	prompt, err := loadOCRPrompt(dir, "German")
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultOCRPrompt+" The text is likely in German.", prompt)

	written, err := os.ReadFile(filepath.Join(dir, ocrPromptFile))
	require.NoError(t, err)
	assert.Equal(t, defaultOcrPrompt, string(written))

	// Custom templates can use sprig functions
	require.NoError(t, os.WriteFile(filepath.Join(dir, ocrPromptFile), []byte(`Transcribe. Language: {{.Language | upper}}`), 0644))
	prompt, err = loadOCRPrompt(dir, "German")
	require.NoError(t, err)
	assert.Equal(t, "Transcribe. Language: GERMAN", prompt)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ocrPromptFile), []byte(`{{.Language`), 0644))
	_, err = loadOCRPrompt(dir, "German")
	assert.Error(t, err)
}

func TestGetLikelyLanguage(t *testing.T) {
	t.Setenv("LLM_LANGUAGE", "")
	assert.Equal(t, "English", getLikelyLanguage())

	t.Setenv("LLM_LANGUAGE", "gERMAN")
	assert.Equal(t, "German", getLikelyLanguage())
}
