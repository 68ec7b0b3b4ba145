// Package provider implements Model Caller backends: an OpenAI
//-compatible client with retry, a raw streaming client, and a canned
// caller for test mode.
package provider

import (
	"errors"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy controls retry behavior for transient model call
// failures. Delays grow exponentially from BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries twice more after the first failure.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
}

// Delay returns the backoff before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// retryable reports whether a failed call is worth repeating. Client
// errors are final, except 429; rate limits, server errors, and
// network failures are transient.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return true
		}
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
			return false
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
