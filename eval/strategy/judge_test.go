package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/instantcocoa/verdict/eval"
	"github.com/instantcocoa/verdict/provider"
)

func TestLLMJudge(t *testing.T) {
	ctx := context.Background()
	cfg := JudgeConfig{Endpoint: "http://judge:8000/v1", Model: "judge-7b"}
	messages := []eval.Message{{Role: "user", Content: "What is the capital of France?"}}

	t.Run("boxed verdict becomes the score", func(t *testing.T) {
		caller := &provider.TestCaller{Outputs: []string{`Both name Paris. \boxed{2}`}}
		res, err := LLMJudge(caller, cfg)(ctx, messages, "Paris", "Paris is the capital.")
		if err != nil {
			t.Fatalf("LLMJudge() error = %v", err)
		}
		if res.Score != 2.0 || res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 2.0/false", res.Score, res.IsBadcase)
		}
		if caller.Calls() != 1 {
			t.Errorf("judge called %d times, want 1", caller.Calls())
		}
	})

	t.Run("missing verdict is a badcase", func(t *testing.T) {
		caller := &provider.TestCaller{Outputs: []string{"the answers look similar"}}
		res, err := LLMJudge(caller, cfg)(ctx, messages, "Paris", "Paris")
		if err != nil {
			t.Fatalf("LLMJudge() error = %v", err)
		}
		if !res.IsBadcase {
			t.Error("verdict without a boxed score should be a badcase")
		}
	})

	t.Run("transport failure is an error", func(t *testing.T) {
		caller := &provider.TestCaller{Err: errors.New("connection refused")}
		_, err := LLMJudge(caller, cfg)(ctx, messages, "Paris", "Paris")
		if err == nil {
			t.Fatal("expected error from failing judge caller")
		}
		if !strings.Contains(err.Error(), "judge call failed") {
			t.Errorf("error = %q", err.Error())
		}
	})

	t.Run("nil caller errors", func(t *testing.T) {
		_, err := LLMJudge(nil, cfg)(ctx, messages, "Paris", "Paris")
		if err == nil {
			t.Fatal("expected error when no judge caller is configured")
		}
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	cfg := JudgeConfig{Model: "judge-7b"}

	refusal := "```json\n" +
		`{"rejection_type": "privacy", "rejection_message": "I cannot share personal data."}` +
		"\n```"

	t.Run("structured refusal plus judge quality", func(t *testing.T) {
		caller := &provider.TestCaller{Outputs: []string{`Polite and on point. \boxed{0.6}`}}
		res, err := Reject(caller, cfg)(ctx, nil, refusal, "")
		if err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if res.Score != 1.0 {
			t.Errorf("Score = %v, want 1.0 (0.4 structure + 0.6 quality)", res.Score)
		}
	})

	t.Run("no fenced payload skips the judge", func(t *testing.T) {
		caller := &provider.TestCaller{}
		res, err := Reject(caller, cfg)(ctx, nil, "I refuse.", "")
		if err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if !res.IsBadcase || res.Score != 0 {
			t.Errorf("Score=%v IsBadcase=%v, want 0/true", res.Score, res.IsBadcase)
		}
		if caller.Calls() != 0 {
			t.Errorf("judge called %d times, want 0", caller.Calls())
		}
	})

	t.Run("missing rejection fields score zero without judging", func(t *testing.T) {
		caller := &provider.TestCaller{}
		out := "```json\n{\"rejection_type\": \"privacy\"}\n```"
		res, err := Reject(caller, cfg)(ctx, nil, out, "")
		if err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if res.Score != 0 || caller.Calls() != 0 {
			t.Errorf("Score=%v calls=%d, want 0/0", res.Score, caller.Calls())
		}
	})

	t.Run("judge verdict missing keeps structure score", func(t *testing.T) {
		caller := &provider.TestCaller{Outputs: []string{"no verdict line"}}
		res, err := Reject(caller, cfg)(ctx, nil, refusal, "")
		if err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if res.Score != 0.4 || !res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0.4/true", res.Score, res.IsBadcase)
		}
	})
}
