package strategy

import (
	"context"
	"encoding/json"

	"github.com/instantcocoa/verdict/eval"
	"github.com/instantcocoa/verdict/verifier"
)

// ifevalReference is the structured reference an instruction-following
// item carries: parallel lists of instruction ids and parameter bags.
type ifevalReference struct {
	InstructionIDs []string          `json:"instruction_id_list"`
	Kwargs         []verifier.Params `json:"kwargs"`
}

// IFEval verifies the output against the instruction constraints named
// in the reference. The score is instruction-level accuracy over the
// checkable constraints; the badcase flag is the strict prompt-level
// verdict (every checked constraint must pass).
func IFEval(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	var ref ifevalReference
	if err := json.Unmarshal([]byte(reference), &ref); err != nil {
		return eval.ScoreResult{
			IsBadcase: true,
			Details:   map[string]any{"error": "reference format error: " + err.Error()},
		}, nil
	}

	if len(ref.InstructionIDs) == 0 {
		return eval.ScoreResult{
			Score:   1.0,
			Details: map[string]any{"note": "no instructions found"},
		}, nil
	}
	if len(ref.InstructionIDs) != len(ref.Kwargs) {
		return eval.ScoreResult{
			IsBadcase: true,
			Details:   map[string]any{"error": "instruction and kwargs lists differ in length"},
		}, nil
	}

	constraints := make([]verifier.Constraint, len(ref.InstructionIDs))
	for i, id := range ref.InstructionIDs {
		constraints[i] = verifier.Constraint{ID: id, Params: ref.Kwargs[i]}
	}

	outcome := verifier.Verify(modelOutput, constraints)

	return eval.ScoreResult{
		Score:     outcome.Score,
		IsBadcase: !outcome.AllPassed,
		Details: map[string]any{
			"total_instructions":    len(ref.InstructionIDs),
			"checked":               outcome.Checked,
			"passed_count":          outcome.Passed,
			"instruction_breakdown": outcome.Results,
		},
	}, nil
}
