package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"bioexplorer/internal/metrics"
	"bioexplorer/internal/models"
	"bioexplorer/internal/prompt"
)

// VectorIndex is the read side of a vector store.
type VectorIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.RetrievalResult, error)
}

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error)
}

// RAG answers questions over the publication index. It holds no mutable
// state and is safe for concurrent use.
type RAG struct {
	index     VectorIndex
	embedder  QueryEmbedder
	generator Generator
	metrics   *metrics.Metrics
}

type Option func(*RAG)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *RAG) { r.metrics = m }
}

func NewRAG(index VectorIndex, embedder QueryEmbedder, generator Generator, opts ...Option) *RAG {
	r := &RAG{index: index, embedder: embedder, generator: generator}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IndexAvailable reports whether the vector index can serve searches. Indexes
// that cannot tell are assumed available.
func (r *RAG) IndexAvailable() bool {
	if a, ok := r.index.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

// Answer retrieves the top chunks for question, asks the model to answer in
// the voice of role and returns the answer with its sources.
//
// Retrieval failures degrade to an empty context. Generation failures are
// returned as *GenerationError with a nil response.
func (r *RAG) Answer(ctx context.Context, question, role string) (*models.QueryResponse, error) {
	parsedRole := prompt.ParseRole(role)
	if strings.TrimSpace(question) == "" {
		r.count(parsedRole, metrics.OutcomeInvalid)
		return nil, ErrEmptyQuestion
	}

	results := r.retrieve(ctx, question)
	contextBlock, sources := Assemble(results)

	start := time.Now()
	answer, err := r.generator.Generate(ctx, parsedRole.Template(), contextBlock, question)
	r.observe("generate", start)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			r.count(parsedRole, metrics.OutcomeGenerationError)
			if r.metrics != nil {
				r.metrics.GenerationErrors.Inc()
			}
		} else {
			r.count(parsedRole, metrics.OutcomeError)
		}
		return nil, err
	}

	r.count(parsedRole, metrics.OutcomeOK)
	log.Debug().
		Str("role", parsedRole.String()).
		Int("chunks", len(results)).
		Int("sources", len(sources)).
		Msg("Answered question")

	return &models.QueryResponse{Response: answer, Sources: sources}, nil
}

// retrieve never fails; any error is logged and yields no results.
func (r *RAG) retrieve(ctx context.Context, question string) []models.RetrievalResult {
	start := time.Now()
	vec, err := r.embedder.EmbedQuery(ctx, question)
	r.observe("embed", start)
	if err != nil {
		r.degrade("embed", err)
		return nil
	}

	start = time.Now()
	results, err := r.index.Search(ctx, vec, models.TopK)
	r.observe("search", start)
	if err != nil {
		r.degrade("search", err)
		return nil
	}
	if r.metrics != nil {
		r.metrics.RetrievedChunks.Observe(float64(len(results)))
	}
	return results
}

func (r *RAG) degrade(stage string, err error) {
	log.Warn().
		Err(fmt.Errorf("%w: %s: %v", ErrRetrievalUnavailable, stage, err)).
		Msg("Answering without context")
	if r.metrics != nil {
		r.metrics.RetrievalDegraded.WithLabelValues(stage).Inc()
	}
}

func (r *RAG) observe(stage string, start time.Time) {
	if r.metrics != nil {
		r.metrics.QueryDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (r *RAG) count(role prompt.Role, outcome string) {
	if r.metrics != nil {
		r.metrics.Queries.WithLabelValues(role.String(), outcome).Inc()
	}
}
