// Package verifier implements deterministic instruction-following checks
// over model output text. A response is parsed once into a Document and
// then verified against a list of constraints, each identified by a
// category-qualified instruction id (e.g. "keywords:frequency") with a
// bag of parameters.
package verifier

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Document is a single response text parsed into the views the check
// rules operate on. Parsing happens once per response, not per check.
type Document struct {
	// Raw is the original text, untouched.
	Raw string
	// Text is the whitespace-trimmed form used by most checks.
	Text string

	Words      []string
	Sentences  []string
	Paragraphs []string
	Lines      []string
}

// NewDocument parses text into word, sentence, paragraph and line views.
// Paragraphs are blank-line separated; lines and paragraphs are trimmed
// and empties dropped.
func NewDocument(text string) *Document {
	trimmed := strings.TrimSpace(text)

	d := &Document{
		Raw:       text,
		Text:      trimmed,
		Words:     wordRE.FindAllString(trimmed, -1),
		Sentences: splitSentences(trimmed),
	}

	for _, p := range strings.Split(trimmed, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			d.Paragraphs = append(d.Paragraphs, p)
		}
	}
	for _, l := range strings.Split(trimmed, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			d.Lines = append(d.Lines, l)
		}
	}
	return d
}

// splitSentences breaks text after "." or "?" followed by a space,
// except when the terminator belongs to an abbreviation ("e.g.", "Mr.").
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 1; i < len(runes); i++ {
		if runes[i] != ' ' {
			continue
		}
		prev := runes[i-1]
		if prev != '.' && prev != '?' {
			continue
		}
		if isAbbreviation(runes, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:i])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// isAbbreviation inspects the characters before the space at index i for
// dotted-initialism ("e.g.") and honorific ("Mr.") shapes.
func isAbbreviation(runes []rune, i int) bool {
	if i >= 4 && isWordRune(runes[i-4]) && runes[i-3] == '.' && isWordRune(runes[i-2]) {
		return true
	}
	if i >= 3 && unicode.IsUpper(runes[i-3]) && unicode.IsLower(runes[i-2]) && runes[i-1] == '.' {
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Params is the parameter bag attached to a constraint, decoded from
// JSON so numbers arrive as float64.
type Params map[string]any

// Str returns the string value for key, or "" when absent or not a
// string.
func (p Params) Str(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the numeric value for key. Numeric strings are parsed.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Strings returns the string-slice value for key, accepting both
// []string and the []any form produced by JSON decoding.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Constraint names one instruction to verify plus its parameters.
type Constraint struct {
	ID     string `json:"instruction_id"`
	Params Params `json:"kwargs"`
}

// ConstraintResult records the verdict for one checked constraint.
type ConstraintResult struct {
	ID     string         `json:"instruction_id"`
	Passed bool           `json:"passed"`
	Params Params         `json:"kwargs,omitempty"`
	Logs   map[string]any `json:"logs,omitempty"`
}

// Outcome aggregates constraint verdicts for one response.
//
// Score is the fraction of checked constraints that passed; AllPassed
// is the strict prompt-level verdict. Constraints with an empty
// parameter bag cannot be verified and are excluded from both counts.
type Outcome struct {
	Score     float64
	AllPassed bool
	Checked   int
	Passed    int
	Results   []ConstraintResult
}

// Verify checks text against every constraint. An unknown instruction
// id counts as a failure; a constraint with no parameters is skipped
// entirely. With nothing checkable the response passes with score 1.
func Verify(text string, constraints []Constraint) Outcome {
	doc := NewDocument(text)
	var out Outcome

	for _, c := range constraints {
		if len(c.Params) == 0 {
			continue
		}

		var passed bool
		var logs map[string]any
		if check, ok := checks[c.ID]; ok {
			passed, logs = check(doc, c.Params)
		} else {
			logs = map[string]any{"reason": "unknown instruction id: " + c.ID}
		}

		out.Checked++
		if passed {
			out.Passed++
		}
		out.Results = append(out.Results, ConstraintResult{
			ID:     c.ID,
			Passed: passed,
			Params: c.Params,
			Logs:   logs,
		})
	}

	if out.Checked == 0 {
		out.Score = 1.0
		out.AllPassed = true
		return out
	}
	out.Score = float64(out.Passed) / float64(out.Checked)
	out.AllPassed = out.Passed == out.Checked
	return out
}

// compare applies a named numeric relation. An empty relation means
// equality.
func compare(actual, target float64, relation string) bool {
	switch relation {
	case "less than":
		return actual < target
	case "greater than":
		return actual > target
	case "at least":
		return actual >= target
	case "at most":
		return actual <= target
	case "equal", "":
		return actual == target
	}
	return false
}
