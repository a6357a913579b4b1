package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goagiq/mcp-markitdown-ui/internal/constants"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// OllamaClient talks to the Ollama chat API.
type OllamaClient struct {
	baseURL     string
	prompt      string
	httpClient  *retryablehttp.Client
	rateLimiter *rate.Limiter
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
}

// ollamaChatChunk is either the whole response or one line of a streamed response.
type ollamaChatChunk struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaClient creates a client for config.VisionBaseURL.
func NewOllamaClient(config Config) *OllamaClient {
	baseURL := strings.TrimRight(config.VisionBaseURL, "/")
	if baseURL == "" {
		baseURL = constants.DefaultOllamaHost
	}
	prompt := config.VisionPrompt
	if prompt == "" {
		prompt = constants.DefaultOCRPrompt
	}

	client := retryablehttp.NewClient()
	client.RetryMax = max(config.MaxRetries, 0)
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = log
	// Return the last response instead of a generic error so the status code is kept
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient = withBearerToken(client.HTTPClient, config.VisionAPIToken)

	c := &OllamaClient{
		baseURL:    baseURL,
		prompt:     prompt,
		httpClient: client,
	}
	if config.RequestsPerMinute > 0 {
		// Allow bursts of one request at a time
		c.rateLimiter = rate.NewLimiter(rate.Limit(config.RequestsPerMinute/60), 1)
	}
	return c
}

// Attempt sends image to model and returns the concatenated message content.
func (c *OllamaClient) Attempt(ctx context.Context, image []byte, model string, timeout time.Duration) (string, error) {
	logger := log.WithFields(logrus.Fields{
		"model":      model,
		"image_size": len(image),
		"timeout":    timeout,
	})

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", &AttemptError{Model: model, Err: fmt.Errorf("rate limiter wait failed: %w", err)}
		}
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model: model,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: c.prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
	})
	if err != nil {
		return "", &AttemptError{Model: model, Err: fmt.Errorf("error marshaling request: %w", err)}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &AttemptError{Model: model, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Sending image to vision model")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AttemptError{Model: model, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &AttemptError{
			Model:      model,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	text, err := decodeChatResponse(resp.Body)
	if err != nil {
		return "", &AttemptError{Model: model, StatusCode: resp.StatusCode, Err: err}
	}
	text = stripReasoning(text)
	if text == "" {
		return "", &AttemptError{Model: model, StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
	}

	logger.WithField("content_length", len(text)).Debug("Vision model returned text")
	return text, nil
}

// decodeChatResponse reads a single JSON object or a newline-delimited stream of
// them, concatenating every message.content fragment in order.
func decodeChatResponse(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var sb strings.Builder
	for {
		var chunk ollamaChatChunk
		err := dec.Decode(&chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("error decoding response: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("model error: %s", chunk.Error)
		}
		if chunk.Message != nil {
			sb.WriteString(chunk.Message.Content)
		}
	}
	return sb.String(), nil
}

// ListModels returns the names of the models installed on the server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error listing models: status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("error decoding model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
