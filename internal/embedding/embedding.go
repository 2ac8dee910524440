package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"bioexplorer/internal/config"
	"bioexplorer/internal/models"
)

// ErrDimensionMismatch is returned when one model run yields vectors of
// different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder is the one text-to-vector model shared by ingestion and query
// serving. Calls are bounded by the configured timeout.
type Embedder struct {
	embeddings.Embedder
	Provider string
	Model    string
	timeout  time.Duration
}

// NewEmbedder creates the embedder described by the embedding config.
func NewEmbedder(llmConfig *config.LLMConfig) (*Embedder, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("base_url", llmConfig.BaseURL).
		Str("embedding_model", llmConfig.Model).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedding model: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(strings.TrimSuffix(llmConfig.BaseURL, "/")))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedding model: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", llmConfig.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(llmConfig.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return Wrap(embedder, llmConfig.Provider, llmConfig.Model, llmConfig.Timeout()), nil
}

// Wrap names an existing langchaingo embedder. A zero timeout disables the
// per-call deadline.
func Wrap(e embeddings.Embedder, provider, model string, timeout time.Duration) *Embedder {
	return &Embedder{Embedder: e, Provider: provider, Model: model, timeout: timeout}
}

// Name identifies the model in the index manifest.
func (e *Embedder) Name() string {
	return e.Provider + "/" + e.Model
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.Embedder.EmbedQuery(ctx, text)
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.Embedder.EmbedDocuments(ctx, texts)
}

func (e *Embedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// ChromemFunc adapts the embedder to chromem-go so that a collection embeds
// text with the same model that produced its stored vectors.
func (e *Embedder) ChromemFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// GenerateEmbedding embeds every chunk in one batched call. All vectors must
// share one dimension.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) == 0 || len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", ErrDimensionMismatch, chunk.ID, len(vectors[i]), dim)
		}
		chunkEmbeddings[i] = models.ChunkEmbedding{Chunk: chunk, Embedding: vectors[i]}
	}
	return chunkEmbeddings, nil
}
