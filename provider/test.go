package provider

import (
	"context"
	"sync"

	"github.com/instantcocoa/verdict/eval"
)

// TestCaller returns canned outputs instead of calling a model. Used by
// test mode and in tests; safe for concurrent use.
type TestCaller struct {
	// Outputs are returned in order, cycling when exhausted. Empty
	// means every call returns a fixed placeholder.
	Outputs []string
	// Err, when set, fails every call.
	Err error

	mu    sync.Mutex
	next  int
	calls int
}

// Generate returns the next canned output.
func (t *TestCaller) Generate(_ context.Context, _ eval.GenerateRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Outputs) == 0 {
		return "test output", nil
	}
	out := t.Outputs[t.next%len(t.Outputs)]
	t.next++
	return out, nil
}

// Calls reports how many times Generate was invoked.
func (t *TestCaller) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

var _ eval.Caller = (*TestCaller)(nil)
