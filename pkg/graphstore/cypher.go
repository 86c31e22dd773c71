package graphstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrWriteQuery is returned when a read-only context receives a write clause
var ErrWriteQuery = errors.New("write queries are not allowed")

var (
	writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	writeProc   = regexp.MustCompile(`(?i)\bCALL\s+(` +
		`apoc\.(create|merge|refactor|periodic|do|atomic|trigger|lock|schema\.assert|import|nodes\.(delete|link|collapse))|` +
		`apoc\.cypher\.(do|run(write|schema|many|file))|` +
		`db\.create|db\.index\.\w+\.(create|drop)|db\.index\.(create|drop)|` +
		`dbms\.)`)
	dottedName = regexp.MustCompile(`\s*\.\s*`)
)

// IsReadOnly reports whether cypher contains no write clause and calls no
// writing procedure. Literals and comments are ignored. An unterminated
// literal or comment is treated as a write.
func IsReadOnly(cypher string) bool {
	clauses, procs, ok := scrubCypher(cypher)
	if !ok {
		return false
	}
	return !writeClause.MatchString(clauses) && !writeProc.MatchString(dottedName.ReplaceAllString(procs, "."))
}

// scrubCypher blanks comments and string literals in one pass. clauses also
// blanks backtick-quoted identifiers, so a label named SET is not a clause;
// procs keeps their text, so a quoted procedure name is still visible.
func scrubCypher(cypher string) (clauses, procs string, ok bool) {
	var c, p strings.Builder
	c.Grow(len(cypher))
	p.Grow(len(cypher))
	emit := func(clause, proc string) {
		c.WriteString(clause)
		p.WriteString(proc)
	}

	src := []rune(cypher)
	for i := 0; i < len(src); i++ {
		r := src[i]
		next := rune(0)
		if i+1 < len(src) {
			next = src[i+1]
		}

		switch {
		case r == '/' && next == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			emit("\n", "\n")
		case r == '/' && next == '*':
			end := -1
			for j := i + 2; j+1 < len(src); j++ {
				if src[j] == '*' && src[j+1] == '/' {
					end = j + 1
					break
				}
			}
			if end < 0 {
				return "", "", false
			}
			i = end
			emit(" ", " ")
		case r == '\'' || r == '"':
			end := -1
			for j := i + 1; j < len(src); j++ {
				if src[j] == '\\' {
					j++
					continue
				}
				if src[j] == r {
					end = j
					break
				}
			}
			if end < 0 {
				return "", "", false
			}
			i = end
			emit("''", "''")
		case r == '`':
			var ident strings.Builder
			closed := false
			for j := i + 1; j < len(src); j++ {
				if src[j] == '`' {
					if j+1 < len(src) && src[j+1] == '`' {
						ident.WriteRune('`')
						j++
						continue
					}
					i = j
					closed = true
					break
				}
				ident.WriteRune(src[j])
			}
			if !closed {
				return "", "", false
			}
			emit("_", ident.String())
		default:
			c.WriteRune(r)
			p.WriteRune(r)
		}
	}
	return c.String(), p.String(), true
}

// SanitizeLabel keeps letters, digits and underscores so the result can be
// interpolated into Cypher between backticks.
func SanitizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// sanitizeProperties turns values Neo4j cannot store (maps, nested lists,
// lists of mixed types) into JSON strings and drops nils.
func sanitizeProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		if k == "" || v == nil {
			continue
		}
		out[k] = storable(v)
	}
	return out
}

func storable(v interface{}) interface{} {
	switch val := v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return val
	case []string, []int64, []float64, []bool:
		return val
	case []interface{}:
		if homogeneous(val) {
			return val
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func homogeneous(items []interface{}) bool {
	kind := ""
	for _, item := range items {
		var k string
		switch item.(type) {
		case string:
			k = "string"
		case bool:
			k = "bool"
		case float64, int, int64:
			k = "number"
		default:
			return false
		}
		if kind != "" && kind != k {
			return false
		}
		kind = k
	}
	return true
}

// ConvertValue turns driver values into JSON-friendly ones: nodes and
// relationships become maps, temporal values become strings.
func ConvertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case dbtype.Node:
		return map[string]interface{}{
			"id":         val.ElementId,
			"labels":     val.Labels,
			"properties": convertMap(val.Props),
		}
	case dbtype.Relationship:
		return map[string]interface{}{
			"id":         val.ElementId,
			"type":       val.Type,
			"start_node": val.StartElementId,
			"end_node":   val.EndElementId,
			"properties": convertMap(val.Props),
		}
	case dbtype.Path:
		nodes := make([]interface{}, len(val.Nodes))
		for i, n := range val.Nodes {
			nodes[i] = ConvertValue(n)
		}
		rels := make([]interface{}, len(val.Relationships))
		for i, r := range val.Relationships {
			rels[i] = ConvertValue(r)
		}
		return map[string]interface{}{"nodes": nodes, "relationships": rels}
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = ConvertValue(item)
		}
		return out
	case map[string]interface{}:
		return convertMap(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case dbtype.Date:
		return val.Time().Format("2006-01-02")
	case dbtype.LocalDateTime:
		return val.Time().Format("2006-01-02T15:04:05.999999999")
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

func convertMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = ConvertValue(v)
	}
	return out
}

func float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
