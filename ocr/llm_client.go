package ocr

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// rateLimitedModel wraps a langchaingo model with a request rate limit and
// jittered exponential backoff between retries.
type rateLimitedModel struct {
	llm         llms.Model
	rateLimiter *rate.Limiter
	maxRetries  int
	backoffMin  time.Duration
	backoffMax  time.Duration
}

func newRateLimitedModel(llm llms.Model, requestsPerMinute float64, maxRetries int) *rateLimitedModel {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1)
	}
	return &rateLimitedModel{
		llm:         llm,
		rateLimiter: limiter,
		maxRetries:  max(maxRetries, 0),
		backoffMin:  1 * time.Second,
		backoffMax:  30 * time.Second,
	}
}

func (r *rateLimitedModel) wait(ctx context.Context) error {
	if r.rateLimiter == nil {
		return nil
	}
	if err := r.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// backoff sleeps before retry number attempt+1. It returns false if ctx ends first.
func (r *rateLimitedModel) backoff(ctx context.Context, attempt int) bool {
	d := r.backoffMin * time.Duration(1<<uint(attempt))
	if d > r.backoffMax {
		d = r.backoffMax
	}
	// +/- 20% jitter
	d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))

	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Call implements the llms.Model interface
func (r *rateLimitedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	for attempt := 0; ; attempt++ {
		response, err := r.llm.Call(ctx, prompt, options...)
		if err == nil {
			return response, nil
		}
		if attempt >= r.maxRetries {
			return "", retryError(attempt, err)
		}
		if !r.backoff(ctx, attempt) {
			return "", ctx.Err()
		}
	}
}

// GenerateContent implements the llms.Model interface
func (r *rateLimitedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		resp, err := r.llm.GenerateContent(ctx, messages, options...)
		if err == nil {
			return resp, nil
		}
		if attempt >= r.maxRetries {
			return nil, retryError(attempt, err)
		}
		if !r.backoff(ctx, attempt) {
			return nil, ctx.Err()
		}
	}
}

func retryError(retries int, err error) error {
	if retries == 0 {
		return err
	}
	return fmt.Errorf("all retry attempts failed, last error: %w", err)
}
