package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// GoogleAIProvider is an llms.Model backed by the Gemini API.
type GoogleAIProvider struct {
	client         *genai.Client
	thinkingBudget *int32
	model          string
}

// NewGoogleAIProvider creates a Gemini model client for one model name.
func NewGoogleAIProvider(ctx context.Context, model string, apiKey string, thinkingBudget *int32) (*GoogleAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI API key is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}

	return &GoogleAIProvider{
		client:         client,
		thinkingBudget: thinkingBudget,
		model:          model,
	}, nil
}

func (p *GoogleAIProvider) generateConfig() *genai.GenerateContentConfig {
	if p.thinkingBudget == nil {
		return nil
	}
	return &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(*p.thinkingBudget),
		},
	}
}

// geminiPart converts a langchaingo content part into a Gemini part.
func geminiPart(part llms.ContentPart) (*genai.Part, error) {
	switch v := part.(type) {
	case llms.TextContent:
		return &genai.Part{Text: v.Text}, nil
	case llms.BinaryContent:
		mimeType := v.MIMEType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return &genai.Part{InlineData: &genai.Blob{Data: v.Data, MIMEType: mimeType}}, nil
	case llms.ImageURLContent:
		if !strings.HasPrefix(v.URL, "data:") {
			return nil, fmt.Errorf("unsupported ImageURLContent with non-data URL: %s", v.URL)
		}
		meta, payload, ok := strings.Cut(v.URL, ",")
		if !ok || strings.Contains(payload, ",") {
			return nil, fmt.Errorf("invalid data URL format")
		}
		mimeType := "image/jpeg"
		if strings.Contains(meta, ";") {
			mimeType = strings.TrimPrefix(strings.Split(meta, ";")[0], "data:")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}, nil
	default:
		return nil, fmt.Errorf("unsupported content part type: %T", v)
	}
}

// GenerateContent implements llms.Model. Image parts must be data URLs or binary content.
func (p *GoogleAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no prompt provided")
	}

	var parts []*genai.Part
	for _, msg := range messages {
		for _, part := range msg.Parts {
			gp, err := geminiPart(part)
			if err != nil {
				return nil, err
			}
			parts = append(parts, gp)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no valid content parts found")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{{Parts: parts}}, p.generateConfig())
	if err != nil {
		return nil, fmt.Errorf("googleai GenerateContent API error: %w", err)
	}
	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}, nil
}

// candidateText joins the non-thinking text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned empty response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned a candidate with no content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned no non-thinking text parts")
	}
	return sb.String(), nil
}

// Call implements llms.Model for plain text prompts.
func (p *GoogleAIProvider) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), p.generateConfig())
	if err != nil {
		return "", fmt.Errorf("googleai GenerateContent API error: %w", err)
	}
	return candidateText(resp)
}
