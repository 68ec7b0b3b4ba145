package verifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// CheckFunc verifies one constraint against a parsed document and
// returns the verdict plus a log map for the report.
type CheckFunc func(d *Document, p Params) (bool, map[string]any)

// maxTitleLength bounds single-line title responses so a whole
// paragraph on one line does not pass as a title.
const maxTitleLength = 150

var (
	bulletRE      = regexp.MustCompile(`^\s*([-*]|\d+\.)\s+`)
	highlightRE   = regexp.MustCompile(`\*[^*]+\*|\*\*[^*]+\*\*`)
	headerRE      = regexp.MustCompile(`(?m)^\s*#+\s+.+`)
	placeholderRE = regexp.MustCompile(`\[[^\n]*?\]|<[^\n]*?>`)
	nonLetterRE   = regexp.MustCompile(`[^a-zA-Z]`)
	spaceRunRE    = regexp.MustCompile(`\s+`)
)

// checks routes category-qualified instruction ids to their rules.
var checks = map[string]CheckFunc{
	"keywords:existence":        checkKeywordsExistence,
	"keywords:frequency":        checkKeywordsFrequency,
	"keywords:forbidden_words":  checkForbiddenWords,
	"keywords:letter_frequency": checkLetterFrequency,

	"length_constraints:number_words":             checkNumberWords,
	"length_constraints:number_sentences":         checkNumberSentences,
	"length_constraints:number_paragraphs":        checkNumberParagraphs,
	"length_constraints:nth_paragraph_first_word": checkNthParagraphFirstWord,

	"detectable_format:title":                       checkTitle,
	"detectable_format:number_bullet_lists":         checkNumberBullets,
	"detectable_format:constrained_response":        checkConstrainedResponse,
	"detectable_format:number_highlighted_sections": checkNumberHighlights,
	"detectable_format:multiple_sections":           checkMultipleSections,
	"detectable_format:json_format":                 checkJSONFormat,

	"detectable_content:number_placeholders": checkNumberPlaceholders,
	"detectable_content:postscript":          checkPostscript,

	"start_end_constraints:forbidden_start_words": checkForbiddenStartWords,
	"start_end_constraints:keywords":              checkPositionKeyword,
	"startend:end_checker":                        checkEndPhrase,
	"startend:quotation":                          checkQuotation,

	"change_case:capital_word_frequency": checkCapitalWordFrequency,
	"change_case:english_lowercase":      checkEnglishLowercase,
	"change_case:english_capital":        checkEnglishCapital,

	"language:response_language": checkResponseLanguage,

	"punctuation:no_comma": checkNoComma,

	"combination:two_responses": checkTwoResponses,
	"combination:repeat_prompt": checkRepeatPrompt,
}

func checkKeywordsExistence(d *Document, p Params) (bool, map[string]any) {
	lower := strings.ToLower(d.Text)
	var missing []string
	for _, kw := range p.Strings("keywords") {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}
	return len(missing) == 0, map[string]any{"missing": missing}
}

func checkKeywordsFrequency(d *Document, p Params) (bool, map[string]any) {
	keyword := p.Str("keyword")
	target, ok := p.Float("frequency")
	if keyword == "" || !ok {
		return false, map[string]any{"reason": "missing keyword or frequency"}
	}
	count := strings.Count(strings.ToLower(d.Text), strings.ToLower(keyword))
	relation := p.Str("relation")
	return compare(float64(count), target, relation), map[string]any{
		"actual": count,
		"target": target,
	}
}

func checkForbiddenWords(d *Document, p Params) (bool, map[string]any) {
	lower := strings.ToLower(d.Text)
	var found []string
	for _, kw := range p.Strings("forbidden_words") {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return len(found) == 0, map[string]any{"found_forbidden": found}
}

// checkLetterFrequency measures the target letter as a percentage of
// all letters in the text, ignoring digits, spaces and punctuation.
func checkLetterFrequency(d *Document, p Params) (bool, map[string]any) {
	letter := strings.ToLower(p.Str("letter"))
	target, ok := p.Float("let_frequency")
	if letter == "" || !ok {
		return false, map[string]any{"reason": "missing letter or let_frequency"}
	}

	letters := strings.ToLower(nonLetterRE.ReplaceAllString(d.Text, ""))
	if len(letters) == 0 {
		return false, map[string]any{"reason": "no letters found in text"}
	}

	count := strings.Count(letters, letter)
	freq := float64(count) / float64(len(letters)) * 100.0
	relation := p.Str("let_relation")
	return compare(freq, target, relation), map[string]any{
		"letter":      letter,
		"actual_freq": freq,
		"target_freq": target,
		"count":       count,
		"total":       len(letters),
		"relation":    relation,
	}
}

func checkNumberWords(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_words")
	if !ok {
		return false, map[string]any{"reason": "missing num_words"}
	}
	count := len(d.Words)
	return compare(float64(count), target, p.Str("relation")), map[string]any{"actual_words": count}
}

func checkNumberSentences(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_sentences")
	if !ok {
		return false, map[string]any{"reason": "missing num_sentences"}
	}
	count := len(d.Sentences)
	return compare(float64(count), target, p.Str("relation")), map[string]any{"actual_sentences": count}
}

func checkNumberParagraphs(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_paragraphs")
	if !ok {
		return false, map[string]any{"reason": "missing num_paragraphs"}
	}
	count := len(d.Paragraphs)
	return compare(float64(count), target, p.Str("relation")), map[string]any{"actual_paragraphs": count}
}

func checkNthParagraphFirstWord(d *Document, p Params) (bool, map[string]any) {
	nth, ok := p.Float("nth_paragraph")
	if !ok || nth < 1 {
		return false, map[string]any{"reason": "nth_paragraph must be 1 or greater"}
	}
	want := strings.ToLower(strings.TrimSpace(p.Str("first_word")))

	idx := int(nth) - 1
	if idx >= len(d.Paragraphs) {
		return false, map[string]any{
			"reason":         "not enough paragraphs in the response",
			"required_index": idx + 1,
			"actual_count":   len(d.Paragraphs),
		}
	}

	words := wordRE.FindAllString(d.Paragraphs[idx], -1)
	if len(words) == 0 {
		return false, map[string]any{"reason": fmt.Sprintf("paragraph %d contains no words", idx+1)}
	}

	got := strings.ToLower(words[0])
	if got != want {
		return false, map[string]any{"expected_word": want, "actual_word": got, "target_paragraph": idx + 1}
	}
	return true, map[string]any{"actual_word": got}
}

// checkTitle accepts a non-empty single line of bounded length.
func checkTitle(d *Document, _ Params) (bool, map[string]any) {
	if d.Text == "" {
		return false, map[string]any{"reason": "response is empty"}
	}
	trimmed := strings.TrimSpace(d.Raw)
	if strings.ContainsAny(trimmed, "\n\r") {
		return false, map[string]any{"reason": "title must be a single line"}
	}
	if len(d.Text) > maxTitleLength {
		return false, map[string]any{"reason": "title too long", "length": len(d.Text)}
	}
	return true, map[string]any{"length": len(d.Text)}
}

func checkNumberBullets(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_bullets")
	if !ok {
		return false, map[string]any{"reason": "missing num_bullets"}
	}
	count := 0
	for _, line := range d.Lines {
		if bulletRE.MatchString(line) {
			count++
		}
	}
	return compare(float64(count), target, p.Str("relation")), map[string]any{"bullet_count": count}
}

func checkConstrainedResponse(d *Document, _ Params) (bool, map[string]any) {
	return len(d.Text) > 0, map[string]any{}
}

func checkNumberHighlights(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_highlights")
	if !ok {
		return false, map[string]any{"reason": "missing num_highlights"}
	}
	count := len(highlightRE.FindAllString(d.Text, -1))
	return compare(float64(count), target, p.Str("relation")), map[string]any{"highlight_count": count}
}

func checkMultipleSections(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_sections")
	if !ok {
		return false, map[string]any{"reason": "missing num_sections"}
	}
	count := len(headerRE.FindAllString(d.Text, -1))
	return compare(float64(count), target, p.Str("relation")), map[string]any{"num_sections": count}
}

// checkJSONFormat requires the outermost brace span of the text to
// parse as JSON, tolerating prose around the object.
func checkJSONFormat(d *Document, _ Params) (bool, map[string]any) {
	s := strings.Index(d.Text, "{")
	e := strings.LastIndex(d.Text, "}")
	if s == -1 || e == -1 || e < s {
		return false, map[string]any{"reason": "no JSON brackets found"}
	}
	var v any
	if err := json.Unmarshal([]byte(d.Text[s:e+1]), &v); err != nil {
		return false, map[string]any{"reason": "JSON parse failed"}
	}
	return true, map[string]any{}
}

func checkNumberPlaceholders(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("num_placeholders")
	if !ok {
		return false, map[string]any{"reason": "missing num_placeholders"}
	}
	count := len(placeholderRE.FindAllString(d.Text, -1))
	return compare(float64(count), target, p.Str("relation")), map[string]any{"placeholder_count": count}
}

func checkPostscript(d *Document, _ Params) (bool, map[string]any) {
	ok := strings.Contains(d.Text, "P.S.") || strings.Contains(strings.ToLower(d.Text), "p.s.")
	return ok, map[string]any{}
}

func checkForbiddenStartWords(d *Document, p Params) (bool, map[string]any) {
	first := ""
	if len(d.Words) > 0 {
		first = d.Words[0]
	}
	lower := strings.ToLower(first)
	for _, w := range p.Strings("forbidden_words") {
		if lower == strings.ToLower(w) {
			return false, map[string]any{"start_word": first}
		}
	}
	return true, map[string]any{"start_word": first}
}

func checkPositionKeyword(d *Document, p Params) (bool, map[string]any) {
	kw := strings.ToLower(p.Str("keyword"))
	lower := strings.ToLower(d.Text)
	switch p.Str("position") {
	case "start":
		return strings.HasPrefix(lower, kw), map[string]any{}
	case "end":
		return strings.HasSuffix(lower, kw), map[string]any{}
	}
	return false, map[string]any{"reason": "invalid position"}
}

func checkEndPhrase(d *Document, p Params) (bool, map[string]any) {
	phrase := p.Str("end_phrase")
	if phrase == "" {
		return false, map[string]any{"reason": "end phrase is empty"}
	}
	output := strings.TrimRight(d.Raw, " \t\r\n")
	want := strings.ToLower(strings.TrimSpace(phrase))
	if !strings.HasSuffix(strings.ToLower(output), want) {
		snippet := output
		if len(snippet) > len(want) {
			snippet = snippet[len(snippet)-len(want):]
		}
		return false, map[string]any{"expected_end": phrase, "actual_end_snippet": snippet}
	}
	return true, map[string]any{}
}

func checkQuotation(d *Document, _ Params) (bool, map[string]any) {
	if len(d.Text) < 2 {
		return false, map[string]any{"reason": "text too short"}
	}
	wrapped := strings.HasPrefix(d.Text, `"`) && strings.HasSuffix(d.Text, `"`)
	return wrapped, map[string]any{"start": d.Text[:1], "end": d.Text[len(d.Text)-1:]}
}

func checkCapitalWordFrequency(d *Document, p Params) (bool, map[string]any) {
	target, ok := p.Float("capital_frequency")
	if !ok {
		return false, map[string]any{"reason": "missing capital_frequency"}
	}
	if len(d.Words) == 0 {
		return false, map[string]any{"reason": "no words"}
	}
	count := 0
	for _, w := range d.Words {
		if isAllUpperAlpha(w) {
			count++
		}
	}
	return compare(float64(count), target, p.Str("relation")), map[string]any{"cap_count": count}
}

func isAllUpperAlpha(w string) bool {
	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return len(w) > 0
}

func checkEnglishLowercase(d *Document, _ Params) (bool, map[string]any) {
	return d.Text == strings.ToLower(d.Text), map[string]any{}
}

func checkEnglishCapital(d *Document, _ Params) (bool, map[string]any) {
	return d.Text == strings.ToUpper(d.Text), map[string]any{}
}

// checkResponseLanguage detects the dominant language of the response
// and matches it against the target ISO 639-1 code. Region suffixes on
// the target ("zh-cn") are dropped before comparison.
func checkResponseLanguage(d *Document, p Params) (bool, map[string]any) {
	target := strings.ToLower(p.Str("language"))
	if i := strings.Index(target, "-"); i > 0 {
		target = target[:i]
	}
	if target == "" {
		return false, map[string]any{"reason": "missing language"}
	}
	if len(d.Text) < 5 {
		return false, map[string]any{"reason": "text too short for reliable language detection"}
	}

	info := whatlanggo.Detect(d.Text)
	detected := strings.ToLower(info.Lang.Iso6391())
	if detected != target {
		return false, map[string]any{"expected_language": target, "detected_language": detected}
	}
	return true, map[string]any{"detected_language": detected}
}

func checkNoComma(d *Document, _ Params) (bool, map[string]any) {
	return !strings.Contains(d.Text, ","), map[string]any{}
}

// checkTwoResponses looks for the section markers a split answer
// carries.
func checkTwoResponses(d *Document, _ Params) (bool, map[string]any) {
	markers := []string{"response 1", "response 2", "part 1", "part 2"}
	lower := strings.ToLower(d.Text)
	count := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			count++
		}
	}
	return count >= 2, map[string]any{"markers_found": count}
}

// checkRepeatPrompt does a whitespace-normalized, case-insensitive
// substring match of the prompt inside the response.
func checkRepeatPrompt(d *Document, p Params) (bool, map[string]any) {
	prompt := p.Str("prompt_to_repeat")
	if prompt == "" {
		return false, map[string]any{"reason": "prompt text to repeat is empty"}
	}

	cleanPrompt := spaceRunRE.ReplaceAllString(strings.TrimSpace(prompt), " ")
	cleanOutput := spaceRunRE.ReplaceAllString(strings.TrimSpace(d.Raw), " ")
	contained := strings.Contains(strings.ToLower(cleanOutput), strings.ToLower(cleanPrompt))
	if !contained {
		return false, map[string]any{
			"reason":     "prompt text was not found in the output",
			"prompt_len": len(cleanPrompt),
			"output_len": len(cleanOutput),
		}
	}
	return true, map[string]any{}
}
