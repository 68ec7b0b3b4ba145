package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeCaller records requests and answers from a fixed function.
type fakeCaller struct {
	mu       sync.Mutex
	requests []GenerateRequest
	generate func(req GenerateRequest) (string, error)
}

func (f *fakeCaller) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(req)
	}
	return "output", nil
}

func (f *fakeCaller) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			GlobalIndex: i,
			Messages: []Message{
				{Role: "user", Content: fmt.Sprintf("question %d", i)},
				{Role: "assistant", Content: fmt.Sprintf("answer %d", i)},
			},
			Reference: fmt.Sprintf("answer %d", i),
		}
	}
	return items
}

func matchStrategy() Strategy {
	return func(_ context.Context, _ []Message, out, ref string) (ScoreResult, error) {
		if out == ref {
			return ScoreResult{Score: 1.0}, nil
		}
		return ScoreResult{Score: 0.0, IsBadcase: true}, nil
	}
}

func TestOrchestrator_Run(t *testing.T) {
	caller := &fakeCaller{
		generate: func(req GenerateRequest) (string, error) {
			// Echo the prompt's question so half the items match.
			return strings.Replace(req.Messages[0].Content, "question", "answer", 1), nil
		},
	}
	orch := NewOrchestrator(caller, matchStrategy(), Options{
		Endpoints: []string{"http://a"},
		Model:     "test-model",
	})

	results, badcases, err := orch.Run(context.Background(), makeItems(5))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if len(badcases) != 0 {
		t.Errorf("got %d badcases, want 0", len(badcases))
	}
	for i, r := range results {
		if r.GlobalIndex != i {
			t.Errorf("results[%d].GlobalIndex = %d, results must be sorted", i, r.GlobalIndex)
		}
		if r.Score == nil || *r.Score != 1.0 {
			t.Errorf("results[%d].Score = %v, want 1.0", i, r.Score)
		}
	}
}

func TestOrchestrator_Run_NoStrategy(t *testing.T) {
	orch := NewOrchestrator(&fakeCaller{}, nil, Options{Endpoints: []string{"http://a"}})

	_, _, err := orch.Run(context.Background(), makeItems(1))
	if err == nil {
		t.Fatal("expected error without a strategy")
	}
}

func TestOrchestrator_Run_NoEndpoints(t *testing.T) {
	orch := NewOrchestrator(&fakeCaller{}, matchStrategy(), Options{})

	_, _, err := orch.Run(context.Background(), makeItems(1))
	if err == nil {
		t.Fatal("expected error without endpoints")
	}

	// No pending work means no endpoints are needed.
	_, _, err = orch.Run(context.Background(), nil)
	if err != nil {
		t.Errorf("Run() with no items error = %v", err)
	}
}

func TestOrchestrator_Run_StripsTargetTurn(t *testing.T) {
	caller := &fakeCaller{}
	orch := NewOrchestrator(caller, matchStrategy(), Options{Endpoints: []string{"http://a"}})

	_, _, err := orch.Run(context.Background(), makeItems(1))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(caller.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(caller.requests))
	}
	msgs := caller.requests[0].Messages
	if len(msgs) != 1 {
		t.Fatalf("model saw %d messages, want 1 (target turn stripped)", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("remaining message role = %q, want user", msgs[0].Role)
	}
}

func TestOrchestrator_Run_RoundRobinEndpoints(t *testing.T) {
	caller := &fakeCaller{}
	endpoints := []string{"http://a", "http://b", "http://c"}
	orch := NewOrchestrator(caller, matchStrategy(), Options{Endpoints: endpoints})

	_, _, err := orch.Run(context.Background(), makeItems(6))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seen := make(map[string]int)
	for _, req := range caller.requests {
		seen[req.Endpoint]++
	}
	for _, ep := range endpoints {
		if seen[ep] != 2 {
			t.Errorf("endpoint %s received %d requests, want 2", ep, seen[ep])
		}
	}
}

func TestOrchestrator_Run_FetchErrorIsBadcase(t *testing.T) {
	caller := &fakeCaller{
		generate: func(req GenerateRequest) (string, error) {
			if strings.Contains(req.Messages[0].Content, "question 1") {
				return "", fmt.Errorf("connection refused")
			}
			return strings.Replace(req.Messages[0].Content, "question", "answer", 1), nil
		},
	}
	orch := NewOrchestrator(caller, matchStrategy(), Options{Endpoints: []string{"http://a"}})

	results, badcases, err := orch.Run(context.Background(), makeItems(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (failures stay in-band)", len(results))
	}

	failed := results[1]
	if failed.Error == "" {
		t.Error("failed item should carry the error")
	}
	if !failed.IsBadcase {
		t.Error("failed item must be a badcase")
	}
	if len(badcases) != 1 {
		t.Errorf("got %d badcases, want 1", len(badcases))
	}
}

func TestOrchestrator_Run_BadcaseThreshold(t *testing.T) {
	lowScore := func(_ context.Context, _ []Message, _, _ string) (ScoreResult, error) {
		return ScoreResult{Score: 0.4}, nil
	}
	orch := NewOrchestrator(&fakeCaller{}, lowScore, Options{
		Endpoints:        []string{"http://a"},
		BadcaseThreshold: 0.6,
	})

	results, badcases, err := orch.Run(context.Background(), makeItems(2))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(badcases) != 2 {
		t.Errorf("got %d badcases, want 2 (score below threshold)", len(badcases))
	}
	for _, r := range results {
		if !r.IsBadcase {
			t.Error("item scoring below threshold must be a badcase")
		}
	}
}

func TestOrchestrator_Run_StrategyErrorForcesBadcase(t *testing.T) {
	failing := func(_ context.Context, _ []Message, _, _ string) (ScoreResult, error) {
		return ScoreResult{}, fmt.Errorf("reference format error")
	}
	orch := NewOrchestrator(&fakeCaller{}, failing, Options{Endpoints: []string{"http://a"}})

	results, badcases, err := orch.Run(context.Background(), makeItems(1))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(badcases) != 1 {
		t.Fatalf("got %d badcases, want 1", len(badcases))
	}
	r := results[0]
	if r.Score == nil || *r.Score != 0 {
		t.Errorf("Score = %v, want 0", r.Score)
	}
	if !strings.Contains(r.Error, "reference format error") {
		t.Errorf("Error = %q, want the strategy error", r.Error)
	}
}

func TestOrchestrator_Run_StrategyPanicIsContained(t *testing.T) {
	panicking := func(_ context.Context, _ []Message, _, _ string) (ScoreResult, error) {
		panic("boom")
	}
	orch := NewOrchestrator(&fakeCaller{}, panicking, Options{Endpoints: []string{"http://a"}})

	results, badcases, err := orch.Run(context.Background(), makeItems(2))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 2 || len(badcases) != 2 {
		t.Fatalf("got %d results, %d badcases, want 2, 2", len(results), len(badcases))
	}
	if !strings.Contains(results[0].Error, "panicked") {
		t.Errorf("Error = %q, want panic recorded", results[0].Error)
	}
}

func TestOrchestrator_Run_TestModeCapsItems(t *testing.T) {
	caller := &fakeCaller{}
	orch := NewOrchestrator(caller, matchStrategy(), Options{
		Endpoints: []string{"http://a"},
		TestMode:  true,
	})

	results, _, err := orch.Run(context.Background(), makeItems(testModeLimit+10))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != testModeLimit {
		t.Errorf("got %d results, want %d in test mode", len(results), testModeLimit)
	}
}

func TestOrchestrator_Run_ResumeSkipsCheckpointed(t *testing.T) {
	dir := t.TempDir()
	cp := NewCheckpoint(filepath.Join(dir, "run.ckpt"), nil)

	// Items 0 and 1 already fetched in a previous run; item 1 twice
	// from overlapping partial runs.
	cp.Append([]*Result{
		{GlobalIndex: 0, ModelOutput: "answer 0", Reference: "answer 0"},
		{GlobalIndex: 1, ModelOutput: "stale", Reference: "answer 1"},
		{GlobalIndex: 1, ModelOutput: "staler", Reference: "answer 1"},
	})

	caller := &fakeCaller{
		generate: func(req GenerateRequest) (string, error) {
			return strings.Replace(req.Messages[0].Content, "question", "answer", 1), nil
		},
	}
	orch := NewOrchestrator(caller, matchStrategy(), Options{
		Endpoints:  []string{"http://a"},
		Checkpoint: cp,
		Resume:     true,
	})

	results, _, err := orch.Run(context.Background(), makeItems(4))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if caller.calls() != 2 {
		t.Errorf("caller invoked %d times, want 2 (items 2 and 3 only)", caller.calls())
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if r.GlobalIndex != i {
			t.Fatalf("results[%d].GlobalIndex = %d, want %d (sorted, no duplicates)", i, r.GlobalIndex, i)
		}
	}
	// First occurrence wins for duplicated checkpoint entries.
	if results[1].ModelOutput != "stale" {
		t.Errorf("results[1].ModelOutput = %q, want first checkpoint occurrence", results[1].ModelOutput)
	}
	// Restored unscored results still go through the score phase.
	if results[0].Score == nil || *results[0].Score != 1.0 {
		t.Errorf("restored result not scored: %v", results[0].Score)
	}
}

func TestOrchestrator_Run_AlreadyScoredPassThrough(t *testing.T) {
	dir := t.TempDir()
	cp := NewCheckpoint(filepath.Join(dir, "run.ckpt"), nil)

	score := 0.25
	cp.Append([]*Result{
		{GlobalIndex: 0, ModelOutput: "x", Reference: "answer 0", Score: &score},
	})

	calls := 0
	counting := func(_ context.Context, _ []Message, _, _ string) (ScoreResult, error) {
		calls++
		return ScoreResult{Score: 1.0}, nil
	}
	orch := NewOrchestrator(&fakeCaller{}, counting, Options{
		Endpoints:  []string{"http://a"},
		Checkpoint: cp,
		Resume:     true,
	})

	results, _, err := orch.Run(context.Background(), makeItems(1))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("strategy invoked %d times, want 0 for already-scored results", calls)
	}
	if *results[0].Score != 0.25 {
		t.Errorf("Score = %v, want checkpointed 0.25", *results[0].Score)
	}
}

func TestOrchestrator_Run_ProgressBands(t *testing.T) {
	var mu sync.Mutex
	var fetchMax, scoreMax float64
	progress := func(phase Phase, current, total int, percent float64) {
		mu.Lock()
		defer mu.Unlock()
		switch phase {
		case PhaseFetch:
			if percent > fetchMax {
				fetchMax = percent
			}
		case PhaseScore:
			if percent > scoreMax {
				scoreMax = percent
			}
		}
	}

	orch := NewOrchestrator(&fakeCaller{}, matchStrategy(), Options{
		Endpoints: []string{"http://a"},
		Progress:  progress,
	})
	_, _, err := orch.Run(context.Background(), makeItems(25))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fetchMax != 60 {
		t.Errorf("fetch phase peaked at %v, want 60", fetchMax)
	}
	if scoreMax != 80 {
		t.Errorf("score phase peaked at %v, want 80", scoreMax)
	}
}

func TestOrchestrator_Run_CheckpointWrittenDuringFetch(t *testing.T) {
	dir := t.TempDir()
	cp := NewCheckpoint(filepath.Join(dir, "run.ckpt"), nil)

	orch := NewOrchestrator(&fakeCaller{}, matchStrategy(), Options{
		Endpoints:          []string{"http://a"},
		Checkpoint:         cp,
		CheckpointInterval: 2,
	})
	_, _, err := orch.Run(context.Background(), makeItems(5))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	loaded, err := cp.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 5 {
		t.Errorf("checkpoint holds %d results, want 5 (interval flushes plus final)", len(loaded))
	}
}
