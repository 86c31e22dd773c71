package workspace

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	maxTotalMatches  = 50
	maxMatchesByFile = 5
	maxFilesShown    = 10
	maxLinesShown    = 3
	maxFuzzyShown    = 5
	matchTextChars   = 100
)

var upperLetter = regexp.MustCompile(`([A-Z])`)

// Match is one search hit
type Match struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Term    string `json:"term"`
	Context string `json:"context"`
}

// searchTerms expands a query into lowercase spelling variants.
func searchTerms(query string) []string {
	set := map[string]bool{strings.ToLower(query): true}
	set[strings.ToLower(strings.TrimSpace(upperLetter.ReplaceAllString(query, " $1")))] = true

	for _, v := range []string{
		strings.ReplaceAll(query, " ", "_"),
		strings.ReplaceAll(query, " ", "-"),
		strings.ReplaceAll(query, " ", ""),
		strings.ReplaceAll(query, "_", " "),
		strings.ReplaceAll(query, "-", " "),
	} {
		set[strings.ToLower(v)] = true
	}

	lower := strings.ToLower(query)
	if strings.Contains(lower, "api") && strings.Contains(lower, "key") {
		for _, v := range []string{"api_key", "apikey", "api-key"} {
			set[v] = true
		}
	}

	terms := make([]string, 0, len(set))
	for t := range set {
		if t != "" {
			terms = append(terms, t)
		}
	}
	sort.Strings(terms)
	return terms
}

func relPath(base, path string) string {
	if base == "" {
		return path
	}
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

// lineAt returns the 1-based line number and trimmed text around offset.
func lineAt(content string, start, end int) (int, string) {
	lineNum := strings.Count(content[:start], "\n") + 1
	lineStart := strings.LastIndex(content[:start], "\n") + 1
	lineEnd := strings.Index(content[end:], "\n")
	if lineEnd == -1 {
		lineEnd = len(content)
	} else {
		lineEnd += end
	}
	return lineNum, strings.TrimSpace(content[lineStart:lineEnd])
}

type fileHits struct {
	path    string
	matches []Match
}

// search scans the files under base for the query and its variants using
// case-insensitive word-boundary patterns, falling back to a loose
// all-words match.
func search(base string, files map[string]*fileEntry, query string, conf float64) *Result {
	terms := searchTerms(query)
	patterns := make([]*regexp.Regexp, len(terms))
	for i, term := range terms {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		if base != "" && !strings.HasPrefix(p, base) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var results []fileHits
	total := 0
scan:
	for _, p := range paths {
		content := files[p].Content
		seenLines := make(map[int]bool)
		var unique []Match

		for _, pattern := range patterns {
			for _, loc := range pattern.FindAllStringIndex(content, -1) {
				line, text := lineAt(content, loc[0], loc[1])
				total++
				if !seenLines[line] {
					seenLines[line] = true
					shown := truncate(text, matchTextChars)
					if shown != text {
						shown += "..."
					}
					unique = append(unique, Match{Line: line, Text: shown, Term: content[loc[0]:loc[1]], Context: text})
				}
				if total > maxTotalMatches {
					if len(unique) > 0 {
						results = append(results, fileHits{path: p, matches: capMatches(unique)})
					}
					break scan
				}
			}
		}
		if len(unique) > 0 {
			results = append(results, fileHits{path: p, matches: capMatches(unique)})
		}
	}

	if len(results) > 0 {
		sort.SliceStable(results, func(i, j int) bool {
			return len(results[i].matches) > len(results[j].matches)
		})

		var b strings.Builder
		fmt.Fprintf(&b, "Found '%s' in %d files (%d total matches):\n", query, len(results), total)
		for _, r := range results[:min(len(results), maxFilesShown)] {
			fmt.Fprintf(&b, "\n\n📄 %s:", relPath(base, r.path))
			for _, m := range r.matches[:min(len(r.matches), maxLinesShown)] {
				fmt.Fprintf(&b, "\n  Line %d: %s", m.Line, m.Text)
			}
		}
		if len(results) > maxFilesShown {
			fmt.Fprintf(&b, "\n\n... and %d more files", len(results)-maxFilesShown)
		}
		return &Result{
			Status: "success",
			Output: b.String(),
			Details: map[string]interface{}{
				"filesAnalyzed":    len(files),
				"matchesFound":     total,
				"filesWithMatches": len(results),
				"confidence":       conf,
			},
		}
	}

	var fuzzy []string
	words := strings.Fields(strings.ToLower(query))
	for _, p := range paths {
		content := strings.ToLower(files[p].Content)
		all := true
		for _, w := range words {
			if !strings.Contains(content, w) {
				all = false
				break
			}
		}
		if all {
			fuzzy = append(fuzzy, relPath(base, p))
		}
	}

	if len(fuzzy) > 0 {
		lines := make([]string, 0, maxFuzzyShown)
		for _, f := range fuzzy[:min(len(fuzzy), maxFuzzyShown)] {
			lines = append(lines, "📄 "+f)
		}
		return &Result{
			Status: "success",
			Output: fmt.Sprintf("No exact matches for '%s', but found potential matches in:\n", query) + strings.Join(lines, "\n"),
			Details: map[string]interface{}{
				"filesAnalyzed": len(files),
				"matchesFound":  0,
				"fuzzyMatches":  len(fuzzy),
			},
		}
	}

	return &Result{
		Status: "warning",
		Output: fmt.Sprintf("No matches found for '%s'", query),
		Details: map[string]interface{}{
			"filesAnalyzed": len(files),
			"matchesFound":  0,
			"searchTerms":   terms[:min(len(terms), 5)],
		},
	}
}

func capMatches(m []Match) []Match {
	if len(m) > maxMatchesByFile {
		return m[:maxMatchesByFile]
	}
	return m
}
