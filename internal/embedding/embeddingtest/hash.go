// Package embeddingtest provides a deterministic, dependency-free embedder for
// tests of the retrieval pipeline.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// Hash embeds text as an L2-normalized bag of hashed lowercase words. Texts
// sharing words are close under cosine similarity.
type Hash struct {
	Dim int
	// Err, when set, is returned by every call.
	Err   error
	calls atomic.Int64
}

func NewHash(dim int) *Hash {
	return &Hash{Dim: dim}
}

// Calls reports how many embedding calls were made.
func (h *Hash) Calls() int64 { return h.calls.Load() }

func (h *Hash) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return h.EmbedDocuments(ctx, texts)
}

func (h *Hash) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := h.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hash) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	if h.Err != nil {
		return nil, h.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.Dim <= 0 {
		return nil, errors.New("embeddingtest: dimension must be positive")
	}

	vec := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.Dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// chromem-go rejects zero vectors; fall back to a fixed unit vector
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
