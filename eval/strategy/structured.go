package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

var solutionRE = regexp.MustCompile(`(?s)<solution>\s*(.*?)\s*</solution>`)

// JSONCheck extracts a JSON object from both output and reference and
// scores the fraction of reference keys whose values the output
// reproduces (case-insensitive on the stringified value). Any missing
// or wrong key flags the item as a badcase.
func JSONCheck(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	res := eval.ScoreResult{Details: map[string]any{}}

	var modelObj, refObj any
	if err := json.Unmarshal([]byte(ExtractJSON(modelOutput)), &modelObj); err != nil {
		res.IsBadcase = true
		res.Details["error"] = err.Error()
		res.Details["model_output"] = modelOutput
		return res, nil
	}
	if err := json.Unmarshal([]byte(ExtractJSON(reference)), &refObj); err != nil {
		res.IsBadcase = true
		res.Details["error"] = err.Error()
		res.Details["reference_output"] = reference
		return res, nil
	}

	modelMap, okModel := modelObj.(map[string]any)
	refMap, okRef := refObj.(map[string]any)
	if !okModel || !okRef {
		res.IsBadcase = true
		res.Details["error"] = "expected a JSON object on both sides"
		return res, nil
	}
	if len(refMap) == 0 {
		return res, fmt.Errorf("reference JSON object has no keys")
	}

	matched := 0
	for key, refVal := range refMap {
		if modelVal, ok := modelMap[key]; ok && strings.EqualFold(fmt.Sprint(modelVal), fmt.Sprint(refVal)) {
			matched++
		}
	}

	if matched < len(refMap) {
		res.IsBadcase = true
		if b, err := json.Marshal(modelMap); err == nil {
			res.Details["json_content"] = string(b)
		}
	}
	res.Score = float64(matched) / float64(len(refMap))
	return res, nil
}

// ListCheck compares list-shaped answers. The output answer may arrive
// wrapped in <solution> tags, as a JSON object with an "answer" field,
// or bare; JSON answers are compared canonically, everything else falls
// back to comma-separated item comparison that tolerates reordering.
func ListCheck(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	res := eval.ScoreResult{Details: map[string]any{}}

	modelAnswer := extractListAnswer(ExtractJSON(modelOutput))
	if strings.TrimSpace(modelAnswer) == "" {
		res.IsBadcase = true
		res.Details["error"] = "no answer found in model output"
		return res, nil
	}
	res.Details["model_answer"] = modelAnswer

	extractedRef := ExtractJSON(reference)

	// Structured path: both sides parse as JSON containers.
	var modelParsed any
	modelIsJSON := false
	if t := strings.TrimSpace(modelAnswer); strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
		modelIsJSON = json.Unmarshal([]byte(t), &modelParsed) == nil
	}

	refAnswer := any(extractedRef)
	var refParsed any
	if err := json.Unmarshal([]byte(extractedRef), &refParsed); err == nil {
		if m, ok := refParsed.(map[string]any); ok {
			if a, ok := m["answer"]; ok {
				refAnswer = a
			} else {
				refAnswer = refParsed
			}
		} else {
			refAnswer = refParsed
		}
	}

	if modelIsJSON {
		if _, isContainer := refAnswer.(map[string]any); isContainer {
			return compareCanonical(res, modelParsed, refAnswer)
		}
		if _, isList := refAnswer.([]any); isList {
			return compareCanonical(res, modelParsed, refAnswer)
		}
	}

	// Fallback: comma-separated items, case-insensitive, order-tolerant.
	modelList := splitItems(stringify(modelAnswer))
	refList := splitItems(strings.ToLower(stringify(refAnswer)))

	if len(modelList) != len(refList) {
		res.IsBadcase = true
		res.Details["error"] = fmt.Sprintf("answer length mismatch: reference=%d, model=%d", len(refList), len(modelList))
		return res, nil
	}

	refSet := make(map[string]bool, len(refList))
	for _, item := range refList {
		refSet[item] = true
	}
	for i, item := range modelList {
		lower := strings.ToLower(item)
		if lower != refList[i] && !refSet[lower] {
			res.IsBadcase = true
			res.Details["error"] = fmt.Sprintf("item %d mismatch: model=%q, reference=%q", i+1, item, refList[i])
			return res, nil
		}
	}

	res.Score = 1.0
	return res, nil
}

func compareCanonical(res eval.ScoreResult, model, ref any) (eval.ScoreResult, error) {
	// json.Marshal emits object keys sorted, so equal structures
	// serialize identically.
	modelJSON, err := json.Marshal(model)
	if err != nil {
		res.IsBadcase = true
		res.Details["error"] = err.Error()
		return res, nil
	}
	refJSON, err := json.Marshal(ref)
	if err != nil {
		res.IsBadcase = true
		res.Details["error"] = err.Error()
		return res, nil
	}
	if string(modelJSON) == string(refJSON) {
		res.Score = 1.0
		return res, nil
	}
	res.IsBadcase = true
	res.Details["error"] = "JSON content mismatch"
	return res, nil
}

func extractListAnswer(text string) string {
	if m := solutionRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	trimmed := strings.TrimSpace(text)
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		switch v := parsed.(type) {
		case map[string]any:
			if a, ok := v["answer"]; ok {
				return stringify(a)
			}
		case string:
			return v
		}
	}
	return trimmed
}

func splitItems(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
