package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/instantcocoa/verdict/eval"
)

// OpenAICaller talks to OpenAI-compatible chat completion endpoints.
// Clients are cached per endpoint so round-robin dispatch reuses
// connections.
type OpenAICaller struct {
	apiKey string
	retry  RetryPolicy
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAICaller creates a caller authenticated with apiKey.
func NewOpenAICaller(apiKey string, retry RetryPolicy, logger *slog.Logger) *OpenAICaller {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAICaller{
		apiKey:  apiKey,
		retry:   retry,
		logger:  logger.With("component", "caller"),
		clients: make(map[string]*openai.Client),
	}
}

func (c *OpenAICaller) client(endpoint string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[endpoint]; ok {
		return cl
	}

	cfg := openai.DefaultConfig(c.apiKey)
	if endpoint != "" {
		cfg.BaseURL = ensureV1(endpoint)
	}
	cl := openai.NewClientWithConfig(cfg)
	c.clients[endpoint] = cl
	return cl
}

// ensureV1 appends the /v1 path segment expected by OpenAI-compatible
// servers when the endpoint omits it.
func ensureV1(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

// Generate performs one chat completion, retrying transient failures
// per the retry policy. The returned string is the first choice's
// content; every failure mode is an error, never an error-shaped
// output.
func (c *OpenAICaller) Generate(ctx context.Context, req eval.GenerateRequest) (string, error) {
	client := c.client(req.Endpoint)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	ccr := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retry.Delay(attempt - 1)
			c.logger.Debug("retrying model call", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := c.complete(ctx, client, ccr, req.Timeout)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("model call failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *OpenAICaller) complete(ctx context.Context, client *openai.Client, ccr openai.ChatCompletionRequest, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
