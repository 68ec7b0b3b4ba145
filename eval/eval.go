// Package eval implements the batch evaluation pipeline for LLM outputs:
// expansion of conversations into evaluable items, a two-phase orchestrator
// (fetch model outputs, then score), checkpoint/resume, and a pluggable
// scoring strategy registry.
package eval

import (
	"context"
	"time"
)

// Message is a single role/content pair in a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Item is one evaluable unit derived from a conversation record.
//
// Messages holds the accumulated history up to and including the target
// turn; the orchestrator strips the final message before dispatching so
// that the model sees only the prompt-side history. Reference is the
// target turn's text, or a JSON reference object for strategies that
// need structured metadata (e.g. instruction constraint lists).
type Item struct {
	// GlobalIndex is the position in the fully expanded, order-preserving
	// sequence. It is the sole join key for checkpointing and merging.
	GlobalIndex   int
	OriginalIndex int
	ExpandedIndex int
	Messages      []Message
	Reference     string
}

// Result is the outcome of evaluating a single item. Phase 1 (fetch)
// creates it unscored; phase 2 (score) is the only place allowed to set
// Score, IsBadcase, and Details.
type Result struct {
	GlobalIndex   int            `json:"index"`
	OriginalIndex int            `json:"original_index"`
	ExpandedIndex int            `json:"expanded_index"`
	Messages      []Message      `json:"user_input,omitempty"`
	ModelOutput   string         `json:"model_output"`
	Reference     string         `json:"reference_output"`
	InferenceSecs float64        `json:"inference_time"`
	Score         *float64       `json:"score,omitempty"`
	IsBadcase     bool           `json:"is_badcase"`
	Details       map[string]any `json:"details,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Scored reports whether the result carries a score. Results restored
// from a checkpoint may already be scored and are passed through phase 2
// unchanged.
func (r *Result) Scored() bool {
	return r.Score != nil && r.Error == ""
}

// ScoreResult is the normalized verdict every scoring strategy produces.
type ScoreResult struct {
	Score     float64
	IsBadcase bool
	Details   map[string]any
}

// Strategy scores a model output against a reference. Strategies must be
// safe for concurrent use; a returned error marks the item as a forced
// badcase without aborting the batch.
type Strategy func(ctx context.Context, messages []Message, modelOutput, reference string) (ScoreResult, error)

// GenerateRequest carries everything the Model Caller needs for one
// completion round-trip.
type GenerateRequest struct {
	Endpoint    string
	Messages    []Message
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
}

// Caller is the model-calling collaborator. Transport failures are
// returned as errors, never encoded into the output text.
type Caller interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
