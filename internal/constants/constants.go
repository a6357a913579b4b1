package constants

// DummyAPIKey is used as a placeholder when connecting to OpenAI-compatible services
// that don't require authentication. Many services expect a token in the request
// header but don't validate it.
const DummyAPIKey = "not-needed"

// DefaultOllamaHost is the Ollama endpoint used when OLLAMA_HOST is not set.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// DefaultVisionModels is the fallback chain tried when no models are configured.
var DefaultVisionModels = []string{
	"llama3.2-vision:latest",
	"minicpm-v:latest",
	"llava:latest",
	"llava:7b",
	"llava:13b",
}

// PageMarkerFormat separates consecutive pages in the generated markdown.
// The verb receives the 1-based number of the page that follows the marker.
const PageMarkerFormat = "\n\n--- Page %d ---\n\n"

// DefaultOCRPrompt is the extraction instruction sent with every image.
const DefaultOCRPrompt = "Extract all text from this image. Return only the extracted text without any additional formatting or commentary."
