package llmclient

import (
	"strconv"
	"strings"
)

// ExtractJSON returns the first balanced {...} or [...] substring of text,
// scanning for the earliest opening bracket and tracking nesting depth
// (ignoring brackets inside string literals) so an object containing
// nested braces is returned whole. This replaces the single-level regex
// idiom (`\{[\s\S]*\}`) the original implementation relied on, which
// Go's RE2 cannot express for arbitrarily nested JSON.
func ExtractJSON(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, brackets don't count
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractIndexList parses a comma-separated list of 1-based indices (as
// used by the relevance-filter and dedup batch prompts), e.g. "1, 3, 7".
// The literal reply "NONE" (case-insensitive) parses to an empty, valid
// list. Any other unparsable reply reports false so the caller can fall
// back to its own heuristic.
func ExtractIndexList(text string) ([]int, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if strings.EqualFold(trimmed, "none") {
		return []int{}, true
	}

	parts := strings.Split(trimmed, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
