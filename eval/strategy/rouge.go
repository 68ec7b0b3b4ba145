package strategy

import (
	"context"
	"regexp"
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

var tokenRE = regexp.MustCompile(`[a-z0-9]+`)

// Rouge scores lexical overlap between output and reference. The
// overall score is the ROUGE-L F-measure; ROUGE-1 and ROUGE-2 are
// reported in the details for the aggregate report.
func Rouge(_ context.Context, _ []eval.Message, modelOutput, reference string) (eval.ScoreResult, error) {
	refTokens := tokenize(reference)
	outTokens := tokenize(modelOutput)

	rouge1 := ngramF(refTokens, outTokens, 1)
	rouge2 := ngramF(refTokens, outTokens, 2)
	rougeL := lcsF(refTokens, outTokens)

	return eval.ScoreResult{
		Score: rougeL,
		Details: map[string]any{
			"rouge1": rouge1,
			"rouge2": rouge2,
			"rougeL": rougeL,
		},
	}, nil
}

func tokenize(text string) []string {
	return tokenRE.FindAllString(strings.ToLower(text), -1)
}

// ngramF computes the n-gram overlap F-measure.
func ngramF(ref, out []string, n int) float64 {
	refGrams := countNgrams(ref, n)
	outGrams := countNgrams(out, n)

	refTotal := len(ref) - n + 1
	outTotal := len(out) - n + 1
	if refTotal <= 0 || outTotal <= 0 {
		return 0
	}

	overlap := 0
	for gram, refCount := range refGrams {
		if outCount, ok := outGrams[gram]; ok {
			overlap += min(refCount, outCount)
		}
	}

	precision := float64(overlap) / float64(outTotal)
	recall := float64(overlap) / float64(refTotal)
	return fmeasure(precision, recall)
}

func countNgrams(tokens []string, n int) map[string]int {
	grams := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		grams[strings.Join(tokens[i:i+n], " ")]++
	}
	return grams
}

// lcsF computes the longest-common-subsequence F-measure.
func lcsF(ref, out []string) float64 {
	if len(ref) == 0 || len(out) == 0 {
		return 0
	}

	// Two-row dynamic program keeps memory linear in the output length.
	prev := make([]int, len(out)+1)
	cur := make([]int, len(out)+1)
	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(out); j++ {
			if ref[i-1] == out[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}

	lcs := prev[len(out)]
	precision := float64(lcs) / float64(len(out))
	recall := float64(lcs) / float64(len(ref))
	return fmeasure(precision, recall)
}

func fmeasure(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
