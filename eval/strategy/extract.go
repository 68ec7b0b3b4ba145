package strategy

import (
	"regexp"
	"strings"
)

var (
	fencedJSONRE = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	fencedRE     = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	boxedIntRE   = regexp.MustCompile(`\\boxed\{(\d+)\}`)
)

// ExtractJSON pulls a JSON payload out of surrounding prose. Precedence:
// a ```json fenced block, then an unlabeled fenced block whose content
// starts with { or [, then the bare text if it starts with { or [. When
// nothing matches the input is returned unchanged.
func ExtractJSON(text string) string {
	if text == "" {
		return text
	}

	if m := fencedJSONRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	if m := fencedRE.FindStringSubmatch(text); m != nil {
		content := strings.TrimSpace(m[1])
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			return content
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed
	}

	return text
}

// extractBoxed returns the integer literal inside the first \boxed{N},
// or "" when absent.
func extractBoxed(text string) string {
	if m := boxedIntRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
