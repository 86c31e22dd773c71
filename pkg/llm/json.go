package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply carries no parseable JSON value
var ErrNoJSON = errors.New("no valid JSON found in response")

// codeBlockPattern matches fenced blocks: (1) language tag, (2) body
var codeBlockPattern = regexp.MustCompile(`(?s)` + "```" + `(\w*)\s*\n(.+?)\n?` + "```")

// ExtractJSON pulls the first JSON object or array out of an LLM reply.
// Fenced ```json blocks win over raw text.
func ExtractJSON(response string) (string, error) {
	for _, match := range codeBlockPattern.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		body := strings.TrimSpace(match[2])
		if isValidJSON(body) {
			return body, nil
		}
		if raw, ok := extractRawJSON(body); ok {
			return raw, nil
		}
	}

	if raw, ok := extractRawJSON(response); ok {
		return raw, nil
	}
	return "", ErrNoJSON
}

// ExtractJSONAs extracts and decodes into T
func ExtractJSONAs[T any](response string) (T, error) {
	var result T

	raw, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("decode JSON: %w", err)
	}
	return result, nil
}

// extractRawJSON tries each '{' or '[' in turn until a balanced, valid
// value is found.
func extractRawJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '{' && c != '[' {
			continue
		}
		if candidate := matchBracket(s[i:]); candidate != "" && isValidJSON(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// matchBracket returns the prefix of s up to the bracket closing s[0],
// ignoring brackets inside strings.
func matchBracket(s string) string {
	open := s[0]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}
