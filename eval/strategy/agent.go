package strategy

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

var (
	answerRE      = regexp.MustCompile(`(?i)(?:Final\s+)?Answer:\s*([\w#]+)`)
	actionRE      = regexp.MustCompile(`(?i)Action\s*:\s*(\w+)`)
	actionLabelRE = regexp.MustCompile(`(?i)Action\s*:`)
	valueRE       = regexp.MustCompile(`(?is)Value:\s*(.+)`)

	thoughtRE     = regexp.MustCompile(`(?i)Thought:`)
	actionInputRE = regexp.MustCompile(`(?i)Action Input\s*:`)
	actionArgsRE  = regexp.MustCompile(`(?s)Action Input\s*:\s*(\{[^{}]*\})`)
	finishRE      = regexp.MustCompile(`(?i)Action\s*:\s*Finish`)
	finalAnswerRE = regexp.MustCompile(`(?i)final_answer\s*:\s*["']([^"']*)["']`)
)

type agentFields struct {
	answer string
	action string
	value  string
}

func extractAgentFields(text string) agentFields {
	var f agentFields
	if m := answerRE.FindStringSubmatch(text); m != nil {
		f.answer = strings.TrimSpace(m[1])
	}
	if m := actionRE.FindStringSubmatch(text); m != nil {
		f.action = strings.TrimSpace(m[1])
	}
	if m := valueRE.FindStringSubmatch(text); m != nil {
		f.value = strings.TrimSpace(m[1])
	}
	return f
}

// AgentInstruct grades structured agent transcripts by comparing the
// extracted Answer and Action fields against the reference: 1.0 for
// both matching, 0.5 for one, plus a 0.2 bonus when the Value field
// matches too. Anything under 0.5 is a badcase.
func AgentInstruct(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	model := extractAgentFields(modelOutput)
	ref := extractAgentFields(reference)

	exact := model.answer == ref.answer && model.action == ref.action
	partial := model.answer == ref.answer || model.action == ref.action

	valueMatch := false
	if ref.value != "" {
		valueMatch = strings.Contains(strings.ToLower(model.value), strings.ToLower(ref.value))
	}

	score := 0.0
	switch {
	case exact:
		score = 1.0
	case partial:
		score = 0.5
	}
	if valueMatch && score > 0 {
		score = min(1.0, score+0.2)
	}

	return eval.ScoreResult{
		Score:     score,
		IsBadcase: score < 0.5,
		Details: map[string]any{
			"model_answer":     model.answer,
			"reference_answer": ref.answer,
			"model_action":     model.action,
			"reference_action": ref.action,
			"model_value":      model.value,
			"reference_value":  ref.value,
			"exact_match":      exact,
			"partial_match":    partial,
			"value_match":      valueMatch,
			"metric":           "agent_instruct_score",
		},
	}, nil
}

// ToolBench grades tool-calling transcripts on four weighted axes:
// format completeness (0.3), tool selection (0.4), argument correctness
// (0.3), and a completion bonus (0.2), capped at 1.0. Scores under 0.6
// are badcases.
func ToolBench(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	var assessment []string

	// Format: only the sections the reference itself carries are
	// required of the output.
	formatMatches, formatChecks := 0, 0
	sections := []struct {
		re      *regexp.Regexp
		name    string
		missing string
	}{
		{thoughtRE, "thought_format_correct", "thought_format_missing"},
		{actionLabelRE, "action_format_correct", "action_format_missing"},
		{actionInputRE, "action_input_format_correct", "action_input_format_missing"},
	}
	for _, s := range sections {
		if !s.re.MatchString(reference) {
			continue
		}
		formatChecks++
		if s.re.MatchString(modelOutput) {
			formatMatches++
			assessment = append(assessment, s.name)
		} else {
			assessment = append(assessment, s.missing)
		}
	}
	formatScore := 0.0
	if formatChecks > 0 {
		formatScore = float64(formatMatches) / float64(formatChecks) * 0.3
	}

	// Tool selection.
	modelTool := firstGroup(actionRE, modelOutput)
	refTool := firstGroup(actionRE, reference)
	toolScore := 0.0
	switch {
	case refTool != "" && modelTool == refTool:
		toolScore = 0.4
		assessment = append(assessment, "tool_selection_correct")
	case refTool != "" && modelTool != "":
		toolScore = 0.1
		assessment = append(assessment, "tool_selection_incorrect")
	default:
		assessment = append(assessment, "tool_selection_missing")
	}

	// Arguments: fraction of reference keys reproduced with equal values.
	paramScore := 0.0
	modelArgs := firstGroup(actionArgsRE, modelOutput)
	refArgs := firstGroup(actionArgsRE, reference)
	switch {
	case refArgs != "" && modelArgs != "":
		var modelParams, refParams map[string]any
		if json.Unmarshal([]byte(modelArgs), &modelParams) != nil ||
			json.Unmarshal([]byte(refArgs), &refParams) != nil {
			assessment = append(assessment, "params_format_error")
			break
		}
		if len(refParams) > 0 {
			matched := 0
			for key, refVal := range refParams {
				if modelVal, ok := modelParams[key]; ok && jsonEqual(modelVal, refVal) {
					matched++
				}
			}
			paramScore = float64(matched) / float64(len(refParams)) * 0.3
			switch {
			case matched == len(refParams):
				assessment = append(assessment, "params_completely_correct")
			case matched > 0:
				assessment = append(assessment, "params_partially_correct")
			default:
				assessment = append(assessment, "params_incorrect")
			}
		}
	case refArgs != "":
		assessment = append(assessment, "params_missing")
	}

	// Completion bonus for a Finish call matching the reference's.
	bonus := 0.0
	if finishRE.MatchString(reference) && finishRE.MatchString(modelOutput) {
		refAnswer := firstGroup(finalAnswerRE, reference)
		modelAnswer := firstGroup(finalAnswerRE, modelOutput)
		switch {
		case refAnswer != "" && modelAnswer != "":
			refWords := wordSet(strings.ToLower(refAnswer))
			modelWords := wordSet(strings.ToLower(modelAnswer))
			overlap := 0
			for w := range refWords {
				if modelWords[w] {
					overlap++
				}
			}
			if len(refWords) > 0 && float64(overlap) >= 0.5*float64(len(refWords)) {
				bonus = 0.2
				assessment = append(assessment, "task_successfully_completed")
			} else {
				bonus = 0.05
				assessment = append(assessment, "task_partially_completed")
			}
		default:
			bonus = 0.1
			assessment = append(assessment, "finish_called")
		}
	}

	score := min(formatScore+toolScore+paramScore+bonus, 1.0)

	overall := "poor"
	switch {
	case score >= 0.9:
		overall = "excellent"
	case score >= 0.7:
		overall = "good"
	case score >= 0.5:
		overall = "fair"
	}

	return eval.ScoreResult{
		Score:     score,
		IsBadcase: score < 0.6,
		Details: map[string]any{
			"overall_assessment":      overall,
			"format_score":            formatScore,
			"tool_selection_score":    toolScore,
			"parameter_score":         paramScore,
			"completion_bonus":        bonus,
			"assessment_parts":        assessment,
			"model_tool_used":         modelTool,
			"reference_tool_expected": refTool,
		},
	}, nil
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func jsonEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
