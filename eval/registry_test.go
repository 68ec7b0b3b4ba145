package eval

import (
	"context"
	"strings"
	"testing"
)

func constStrategy(score float64) Strategy {
	return func(_ context.Context, _ []Message, _, _ string) (ScoreResult, error) {
		return ScoreResult{Score: score}, nil
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register("exact", constStrategy(1.0))

	s, err := reg.Lookup("exact")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	sr, err := s(context.Background(), nil, "x", "x")
	if err != nil {
		t.Fatalf("strategy error = %v", err)
	}
	if sr.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", sr.Score)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Lookup("nope")
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error %q should name the missing strategy", err.Error())
	}
}

func TestRegistry_RegisterLastWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register("s", constStrategy(0.1))
	reg.Register("s", constStrategy(0.9))

	s, err := reg.Lookup("s")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	sr, _ := s(context.Background(), nil, "", "")
	if sr.Score != 0.9 {
		t.Errorf("Score = %v, want 0.9 (later registration must win)", sr.Score)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("zeta", constStrategy(0))
	reg.Register("alpha", constStrategy(0))
	reg.Register("mid", constStrategy(0))

	names := reg.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
