package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// mockLLM implements llms.Model. Each call consumes the next error; once the
// errors run out every call succeeds with content.
type mockLLM struct {
	mu       sync.Mutex
	errs     []error
	content  string
	calls    int
	messages []llms.MessageContent
}

func (m *mockLLM) next() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.next(); err != nil {
		return "", err
	}
	return m.content, nil
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.messages = messages
	m.mu.Unlock()
	if err := m.next(); err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func fastRetries(llm llms.Model, retries int) *rateLimitedModel {
	r := newRateLimitedModel(llm, 0, retries)
	r.backoffMin = time.Millisecond
	r.backoffMax = 5 * time.Millisecond
	return r
}

func TestRateLimitedModel_GenerateContent(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{name: "succeeds first time", failures: 0, retries: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, retries: 3, wantCalls: 3},
		{name: "gives up after max retries", failures: 5, retries: 2, wantErr: true, wantCalls: 3},
		{name: "no retries configured", failures: 1, retries: 0, wantErr: true, wantCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockLLM{content: "text"}
			for i := 0; i < tc.failures; i++ {
				mock.errs = append(mock.errs, errors.New("mock error"))
			}

			resp, err := fastRetries(mock, tc.retries).GenerateContent(context.Background(), nil)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "text", resp.Choices[0].Content)
			}
			assert.Equal(t, tc.wantCalls, mock.calls)
		})
	}
}

func TestRateLimitedModel_Call(t *testing.T) {
	mock := &mockLLM{content: "answer", errs: []error{errors.New("mock error")}}

	out, err := fastRetries(mock, 1).Call(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 2, mock.calls)
}

func TestRateLimitedModel_ContextCancelledDuringBackoff(t *testing.T) {
	mock := &mockLLM{errs: []error{errors.New("mock error"), errors.New("mock error")}}
	r := newRateLimitedModel(mock, 0, 3)
	r.backoffMin = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.GenerateContent(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.calls)
}

func TestRateLimitedModel_RateLimit(t *testing.T) {
	mock := &mockLLM{content: "ok"}
	// 1200 per minute is one request every 50ms
	r := newRateLimitedModel(mock, 1200, 0)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.GenerateContent(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
