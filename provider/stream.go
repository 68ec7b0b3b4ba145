package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

// StreamCaller performs chat completions over server-sent events and
// assembles the streamed deltas into the final output. Useful against
// inference servers that only expose streaming, or when responses are
// long enough to hit idle-connection timeouts on unary calls.
type StreamCaller struct {
	apiKey     string
	httpClient *http.Client
}

// NewStreamCaller creates a streaming caller authenticated with apiKey.
func NewStreamCaller(apiKey string) *StreamCaller {
	return &StreamCaller{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type streamRequest struct {
	Model       string         `json:"model"`
	Messages    []eval.Message `json:"messages"`
	Temperature float32        `json:"temperature,omitempty"`
	TopP        float32        `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Generate streams a completion and returns the concatenated deltas.
func (c *StreamCaller) Generate(ctx context.Context, req eval.GenerateRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(streamRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := ensureV1(req.Endpoint) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("model API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return readStream(resp.Body)
}

// readStream consumes "data:" SSE lines until [DONE], collecting the
// delta content of each chunk.
func readStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var content strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return content.String(), nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Partial chunks can straddle reads; skip and keep going.
			continue
		}
		if len(chunk.Choices) > 0 {
			content.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read error: %w", err)
	}
	return content.String(), nil
}

var _ eval.Caller = (*StreamCaller)(nil)
var _ eval.Caller = (*OpenAICaller)(nil)
