// Package llmtest provides scripted llm.Generator and llm.Embedder fakes.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/fastctx/fastctx/pkg/llm"
)

// ErrNoReply is returned when no rule matches and no default is set
var ErrNoReply = errors.New("llmtest: no scripted reply")

type rule struct {
	contains string
	reply    string
	err      error
}

// Generator replies with the first rule whose substring occurs in the prompt
type Generator struct {
	mu      sync.Mutex
	rules   []rule
	Default string
	Prompts []string
	Options []llm.Options
}

// On registers a reply for prompts containing substr
func (g *Generator) On(substr, reply string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{contains: substr, reply: reply})
	return g
}

// Fail registers an error for prompts containing substr
func (g *Generator) Fail(substr string, err error) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{contains: substr, err: err})
	return g
}

// Calls returns the number of prompts seen
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts)
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)
	g.Options = append(g.Options, llm.Apply(opts...))

	for _, r := range g.rules {
		if strings.Contains(prompt, r.contains) {
			return r.reply, r.err
		}
	}
	if g.Default != "" {
		return g.Default, nil
	}
	return "", ErrNoReply
}

// Embedder returns a fixed-size vector derived from text length
type Embedder struct {
	Dims int
	Err  error
}

func (e *Embedder) vector(text string) []float32 {
	dims := e.Dims
	if dims <= 0 {
		dims = 3
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(len(text)+i) / 100
	}
	return v
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}
