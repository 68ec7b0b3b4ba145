package strategy

import (
	"context"
	"testing"
)

func TestExactMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("matching boxed values", func(t *testing.T) {
		res, err := ExactMatch(ctx, nil, `reasoning... \boxed{42}`, `\boxed{42}`)
		if err != nil {
			t.Fatalf("ExactMatch() error = %v", err)
		}
		if res.Score != 1.0 || res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 1.0/false", res.Score, res.IsBadcase)
		}
	})

	t.Run("different boxed values", func(t *testing.T) {
		res, err := ExactMatch(ctx, nil, `\boxed{41}`, `\boxed{42}`)
		if err != nil {
			t.Fatalf("ExactMatch() error = %v", err)
		}
		if res.Score != 0.0 || !res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0.0/true", res.Score, res.IsBadcase)
		}
		if res.Details["model_value"] != "41" || res.Details["reference_value"] != "42" {
			t.Errorf("Details = %v", res.Details)
		}
	})

	t.Run("no boxed value never matches", func(t *testing.T) {
		res, err := ExactMatch(ctx, nil, "the answer is 42", "no box here either")
		if err != nil {
			t.Fatalf("ExactMatch() error = %v", err)
		}
		if res.Score != 0.0 || !res.IsBadcase {
			t.Errorf("Score=%v IsBadcase=%v, want 0.0/true", res.Score, res.IsBadcase)
		}
	})
}

func TestBox(t *testing.T) {
	ctx := context.Background()

	res, err := Box(ctx, nil, `\boxed{7}`, `\boxed{7}`)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	if res.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", res.Score)
	}

	// Mismatch scores zero but the badcase verdict is left to the
	// threshold rule.
	res, err = Box(ctx, nil, `\boxed{8}`, `\boxed{7}`)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	if res.Score != 0.0 || res.IsBadcase {
		t.Errorf("Score=%v IsBadcase=%v, want 0.0/false", res.Score, res.IsBadcase)
	}
}

func TestEqualCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		output    string
		reference string
		want      float64
	}{
		{"exact", "Paris", "Paris", 1.0},
		{"trailing period forgiven", "Paris.", "Paris", 1.0},
		{"surrounding whitespace", "  Paris  ", "Paris", 1.0},
		{"different", "Lyon", "Paris", 0.0},
		{"empty output", "", "Paris", 0.0},
		{"only one trailing period", "Paris..", "Paris", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := EqualCheck(ctx, nil, tt.output, tt.reference)
			if err != nil {
				t.Fatalf("EqualCheck() error = %v", err)
			}
			if res.Score != tt.want {
				t.Errorf("Score = %v, want %v", res.Score, tt.want)
			}
		})
	}
}
