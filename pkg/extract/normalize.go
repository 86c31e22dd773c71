package extract

import (
	"strings"
	"unicode"
)

// words splits s on separators and lower-to-upper case boundaries.
func words(s string) []string {
	var out []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// NodeLabel normalizes a node type to PascalCase ("code file" -> "CodeFile",
// "HTTPServer" -> "HttpServer").
func NodeLabel(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// RelationshipType normalizes a relationship type to UPPER_SNAKE
// ("dependsOn" -> "DEPENDS_ON").
func RelationshipType(s string) string {
	parts := words(s)
	for i, w := range parts {
		parts[i] = strings.ToUpper(w)
	}
	return strings.Join(parts, "_")
}

func typeSet(types []string, normalize func(string) string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[normalize(t)] = true
	}
	return set
}
