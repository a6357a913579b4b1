package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMVisionClient runs vision OCR through langchaingo chat models (OpenAI-compatible
// servers, Mistral and Gemini). One llms.Model is created lazily per model name.
type LLMVisionClient struct {
	provider string
	prompt   string
	newModel func(model string) (llms.Model, error)

	mu     sync.Mutex
	models map[string]llms.Model
}

func newLLMVisionClient(config Config) (*LLMVisionClient, error) {
	provider := strings.ToLower(config.VisionProvider)
	var factory func(model string) (llms.Model, error)
	switch provider {
	case "openai":
		if config.VisionAPIToken == "" && config.VisionBaseURL == "" {
			return nil, fmt.Errorf("OpenAI API key is not set")
		}
		factory = func(model string) (llms.Model, error) {
			return createOpenAIClient(config, model)
		}
	case "mistral":
		if config.VisionAPIToken == "" {
			return nil, fmt.Errorf("Mistral API key is not set")
		}
		factory = func(model string) (llms.Model, error) {
			return mistral.New(
				mistral.WithModel(model),
				mistral.WithAPIKey(config.VisionAPIToken),
			)
		}
	case "googleai":
		if config.VisionAPIToken == "" {
			return nil, fmt.Errorf("Google AI API key is not set")
		}
		factory = func(model string) (llms.Model, error) {
			return NewGoogleAIProvider(context.Background(), model, config.VisionAPIToken, config.VisionThinkingBudget)
		}
	default:
		return nil, fmt.Errorf("unsupported vision LLM provider: %s", config.VisionProvider)
	}

	// One limiter for all models of the provider
	limiter := newRateLimitedModel(nil, config.RequestsPerMinute, config.MaxRetries)
	wrapped := func(model string) (llms.Model, error) {
		llm, err := factory(model)
		if err != nil {
			return nil, err
		}
		r := *limiter
		r.llm = llm
		return &r, nil
	}
	return newLLMVisionClientWithFactory(provider, config.VisionPrompt, wrapped), nil
}

func newLLMVisionClientWithFactory(provider, prompt string, factory func(string) (llms.Model, error)) *LLMVisionClient {
	if prompt == "" {
		prompt = constants.DefaultOCRPrompt
	}
	return &LLMVisionClient{
		provider: provider,
		prompt:   prompt,
		newModel: factory,
		models:   make(map[string]llms.Model),
	}
}

// createOpenAIClient creates an OpenAI chat model. OpenAI-compatible servers
// reached through a base URL do not need a real API key.
func createOpenAIClient(config Config, model string) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(model)}
	token := config.VisionAPIToken
	if config.VisionBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.VisionBaseURL))
		if token == "" {
			token = constants.DummyAPIKey
		}
	}
	opts = append(opts, openai.WithToken(token))
	return openai.New(opts...)
}

func (c *LLMVisionClient) model(name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.newModel(name)
	if err != nil {
		return nil, err
	}
	c.models[name] = m
	return m, nil
}

func (c *LLMVisionClient) Attempt(ctx context.Context, image []byte, model string, timeout time.Duration) (string, error) {
	logger := log.WithFields(logrus.Fields{
		"provider": c.provider,
		"model":    model,
	})

	llm, err := c.model(model)
	if err != nil {
		return "", &AttemptError{Model: model, Err: fmt.Errorf("error creating vision LLM client: %w", err)}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	mimeType := mimetype.Detect(image).String()
	parts := []llms.ContentPart{
		llms.ImageURLPart("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)),
		llms.TextPart(c.prompt),
	}

	logger.Debug("Sending request to vision model")
	completion, err := llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Parts: parts,
			Role:  llms.ChatMessageTypeHuman,
		},
	})
	if err != nil {
		return "", &AttemptError{Model: model, Err: fmt.Errorf("error getting response from LLM: %w", err)}
	}
	if len(completion.Choices) == 0 {
		return "", &AttemptError{Model: model, Err: ErrEmptyResponse}
	}

	text := stripReasoning(completion.Choices[0].Content)
	if text == "" {
		return "", &AttemptError{Model: model, Err: ErrEmptyResponse}
	}
	logger.WithField("content_length", len(text)).Debug("Vision model returned text")
	return text, nil
}
