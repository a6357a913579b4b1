package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

func int32Ptr(v int32) *int32 { return &v }

func TestNewGoogleAIProvider(t *testing.T) {
	tests := []struct {
		name           string
		model          string
		apiKey         string
		thinkingBudget *int32
		wantErr        bool
	}{
		{name: "valid config", model: "gemini-2.5-flash", apiKey: "test-api-key"},
		{name: "valid config with thinking budget", model: "gemini-2.5-flash", apiKey: "test-api-key", thinkingBudget: int32Ptr(8192)},
		{name: "missing API key", model: "gemini-2.5-flash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewGoogleAIProvider(context.Background(), tt.model, tt.apiKey, tt.thinkingBudget)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "API key is not set")
				assert.Nil(t, provider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.model, provider.model)
			assert.NotNil(t, provider.client)
			if tt.thinkingBudget != nil {
				require.NotNil(t, provider.generateConfig())
				assert.Equal(t, *tt.thinkingBudget, *provider.generateConfig().ThinkingConfig.ThinkingBudget)
			} else {
				assert.Nil(t, provider.generateConfig())
			}
		})
	}
}

func TestNewVisionClient_GoogleAI(t *testing.T) {
	client, err := NewVisionClient(Config{VisionProvider: "GoogleAI", VisionAPIToken: "test-api-key"})
	require.NoError(t, err)
	llmClient, ok := client.(*LLMVisionClient)
	require.True(t, ok)
	assert.Equal(t, "googleai", llmClient.provider)

	model, err := llmClient.model("gemini-2.5-flash")
	require.NoError(t, err)
	limited, ok := model.(*rateLimitedModel)
	require.True(t, ok)
	gemini, ok := limited.llm.(*GoogleAIProvider)
	require.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash", gemini.model)
}

func TestGoogleAIProvider_GenerateContentErrors(t *testing.T) {
	tests := []struct {
		name     string
		messages []llms.MessageContent
		errMsg   string
	}{
		{"empty messages", []llms.MessageContent{}, "no prompt provided"},
		{"empty parts", []llms.MessageContent{{Parts: []llms.ContentPart{}}}, "no valid content parts found"},
		{"unsupported part", []llms.MessageContent{{Parts: []llms.ContentPart{llms.ToolCallResponse{}}}}, "unsupported content part type"},
		{"remote image URL", []llms.MessageContent{{Parts: []llms.ContentPart{llms.ImageURLPart("https://example.com/scan.jpg")}}}, "non-data URL"},
		{"malformed data URL", []llms.MessageContent{{Parts: []llms.ContentPart{llms.ImageURLPart("data:image/jpeg;base64,not,valid")}}}, "invalid data URL format"},
		{"bad base64", []llms.MessageContent{{Parts: []llms.ContentPart{llms.ImageURLPart("data:image/jpeg;base64,!!!")}}}, "failed to decode base64 image"},
	}

	provider := &GoogleAIProvider{model: "gemini-2.5-flash"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := provider.GenerateContent(context.Background(), tt.messages)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, resp)
		})
	}
}

func TestGeminiPart(t *testing.T) {
	part, err := geminiPart(llms.ImageURLPart("data:image/png;base64,aGVsbG8="))
	require.NoError(t, err)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, "image/png", part.InlineData.MIMEType)
	assert.Equal(t, []byte("hello"), part.InlineData.Data)

	part, err = geminiPart(llms.BinaryPart("", []byte{0xff, 0xd8}))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)

	part, err = geminiPart(llms.TextPart("Extract the text"))
	require.NoError(t, err)
	assert.Equal(t, "Extract the text", part.Text)
}

func TestCandidateText(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr bool
	}{
		{name: "nil response", wantErr: true},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, wantErr: true},
		{name: "no content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, wantErr: true},
		{
			name: "thinking parts skipped",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "reasoning", Thought: true},
				{Text: "Invoice "},
				{Text: "42"},
			}}}}},
			want: "Invoice 42",
		},
		{
			name: "only thinking",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "reasoning", Thought: true},
			}}}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := candidateText(tt.resp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
