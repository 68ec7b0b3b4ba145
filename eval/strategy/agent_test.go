package strategy

import (
	"context"
	"math"
	"testing"
)

func TestAgentInstruct(t *testing.T) {
	ctx := context.Background()

	t.Run("answer and action match", func(t *testing.T) {
		ref := "Answer: A\nAction: search"
		res, err := AgentInstruct(ctx, nil, "Answer: A\nAction: search", ref)
		if err != nil {
			t.Fatalf("AgentInstruct() error = %v", err)
		}
		if res.Score != 1.0 || res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 1.0/false", res.Score, res.IsBadcase)
		}
	})

	t.Run("one field matches", func(t *testing.T) {
		ref := "Answer: A\nAction: search"
		res, err := AgentInstruct(ctx, nil, "Answer: A\nAction: lookup", ref)
		if err != nil {
			t.Fatalf("AgentInstruct() error = %v", err)
		}
		if res.Score != 0.5 || res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0.5/false", res.Score, res.IsBadcase)
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		ref := "Answer: A\nAction: search"
		res, err := AgentInstruct(ctx, nil, "Answer: B\nAction: lookup", ref)
		if err != nil {
			t.Fatalf("AgentInstruct() error = %v", err)
		}
		if res.Score != 0.0 || !res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0.0/true", res.Score, res.IsBadcase)
		}
	})

	t.Run("value bonus on partial match", func(t *testing.T) {
		ref := "Answer: A\nAction: search\nValue: 42"
		res, err := AgentInstruct(ctx, nil, "Answer: A\nAction: lookup\nValue: the result is 42", ref)
		if err != nil {
			t.Fatalf("AgentInstruct() error = %v", err)
		}
		if math.Abs(res.Score-0.7) > 1e-9 {
			t.Errorf("Score = %v, want 0.7", res.Score)
		}
	})

	t.Run("value bonus capped at 1.0", func(t *testing.T) {
		ref := "Answer: A\nAction: search\nValue: 42"
		res, err := AgentInstruct(ctx, nil, ref, ref)
		if err != nil {
			t.Fatalf("AgentInstruct() error = %v", err)
		}
		if res.Score != 1.0 {
			t.Errorf("Score = %v, want 1.0", res.Score)
		}
	})
}

func TestToolBench(t *testing.T) {
	ctx := context.Background()

	transcript := "Thought: I should look up the weather.\n" +
		"Action: search\n" +
		`Action Input: {"query": "weather"}`

	t.Run("exact transcript scores full marks", func(t *testing.T) {
		res, err := ToolBench(ctx, nil, transcript, transcript)
		if err != nil {
			t.Fatalf("ToolBench() error = %v", err)
		}
		if res.Score != 1.0 || res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 1.0/false (details: %v)", res.Score, res.IsBadcase, res.Details)
		}
		if res.Details["overall_assessment"] != "excellent" {
			t.Errorf("overall_assessment = %v", res.Details["overall_assessment"])
		}
	})

	t.Run("wrong tool and arguments is a badcase", func(t *testing.T) {
		model := "Thought: hmm.\n" +
			"Action: lookup\n" +
			`Action Input: {"query": "other"}`
		res, err := ToolBench(ctx, nil, model, transcript)
		if err != nil {
			t.Fatalf("ToolBench() error = %v", err)
		}
		// Format 0.3, wrong tool 0.1, wrong args 0.
		if math.Abs(res.Score-0.4) > 1e-9 {
			t.Errorf("Score = %v, want 0.4 (details: %v)", res.Score, res.Details)
		}
		if !res.IsBadcase {
			t.Error("score under 0.6 should be a badcase")
		}
	})

	t.Run("finish bonus capped at 1.0", func(t *testing.T) {
		finished := "Thought: done.\n" +
			"Action: Finish\n" +
			`Action Input: {"final_answer": "sunny and warm"}`
		res, err := ToolBench(ctx, nil, finished, finished)
		if err != nil {
			t.Fatalf("ToolBench() error = %v", err)
		}
		if res.Score != 1.0 {
			t.Errorf("Score = %v, want 1.0 (details: %v)", res.Score, res.Details)
		}
	})

	t.Run("missing sections", func(t *testing.T) {
		res, err := ToolBench(ctx, nil, "just a bare reply", transcript)
		if err != nil {
			t.Fatalf("ToolBench() error = %v", err)
		}
		if res.Score != 0 || !res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0/true (details: %v)", res.Score, res.IsBadcase, res.Details)
		}
	})
}
