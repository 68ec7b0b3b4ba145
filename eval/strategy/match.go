package strategy

import (
	"context"
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

// ExactMatch compares the \boxed{N} values of output and reference. An
// output with no boxed value never matches.
func ExactMatch(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	modelValue := extractBoxed(modelOutput)
	refValue := extractBoxed(reference)

	match := modelValue != "" && modelValue == refValue
	score := 0.0
	if match {
		score = 1.0
	}
	return eval.ScoreResult{
		Score:     score,
		IsBadcase: !match,
		Details: map[string]any{
			"model_value":     modelValue,
			"reference_value": refValue,
		},
	}, nil
}

// Box is the lenient variant of ExactMatch: it scores 1.0 when both
// sides carry equal boxed values but never flags a badcase on its own,
// leaving that to the threshold rule.
func Box(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	modelValue := extractBoxed(modelOutput)
	refValue := extractBoxed(reference)

	score := 0.0
	if modelValue != "" && refValue != "" && modelValue == refValue {
		score = 1.0
	}
	return eval.ScoreResult{Score: score, Details: map[string]any{}}, nil
}

// EqualCheck is a whole-string equality check. A single trailing period
// on the output is forgiven before comparison.
func EqualCheck(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	out := strings.TrimSpace(modelOutput)
	out = strings.TrimSuffix(out, ".")

	score := 0.0
	if out != "" && out == strings.TrimSpace(reference) {
		score = 1.0
	}
	return eval.ScoreResult{Score: score, Details: map[string]any{}}, nil
}
