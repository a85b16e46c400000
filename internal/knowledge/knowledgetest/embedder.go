// Package knowledgetest provides deterministic embedders for tests that exercise retrieval.
package knowledgetest

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Vocabulary is the term list SalesEmbedder counts over. It covers the built-in seed set.
var Vocabulary = []string{
	"q3", "sales", "decline", "east", "china", "region", "partner", "optimization", "plan",
	"shanghai", "logistics", "center", "flagship", "phone", "series", "product", "market",
	"distributors", "launched", "contains", "affects", "upgrade", "turnover",
}

// TermEmbedder embeds text as term counts over a fixed vocabulary.
type TermEmbedder struct {
	Vocab []string

	mu    sync.Mutex
	calls [][]string
}

// SalesEmbedder returns a TermEmbedder over Vocabulary.
func SalesEmbedder() *TermEmbedder {
	return &TermEmbedder{Vocab: Vocabulary}
}

func (e *TermEmbedder) EmbedMany(ctx context.Context, texts []string) [][]float32 {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out
}

// Calls returns every batch the embedder has seen.
func (e *TermEmbedder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

func (e *TermEmbedder) vector(text string) []float32 {
	counts := map[string]int{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	}) {
		counts[tok]++
	}
	vec := make([]float32, len(e.Vocab))
	for i, term := range e.Vocab {
		vec[i] = float32(counts[term])
	}
	return vec
}

// FailingEmbedder never produces vectors.
type FailingEmbedder struct{}

func (FailingEmbedder) EmbedMany(ctx context.Context, texts []string) [][]float32 { return nil }
