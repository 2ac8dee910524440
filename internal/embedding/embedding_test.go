package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"bioexplorer/internal/config"
	"bioexplorer/internal/embedding/embeddingtest"
	"bioexplorer/internal/models"
)

type raggedClient struct{}

func (raggedClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 3+i)
		out[i][0] = 1
	}
	return out, nil
}

type slowEmbedder struct{}

func (slowEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerateEmbedding(t *testing.T) {
	impl, err := embeddings.NewEmbedder(embeddingtest.NewHash(16))
	require.NoError(t, err)

	chunks := []models.Chunk{
		{ID: "a", Content: "plants grown in microgravity"},
		{ID: "b", Content: "bone loss in astronauts"},
	}

	out, err := GenerateEmbedding(context.Background(), impl, chunks)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Len(t, out[0].Embedding, 16)
	assert.Len(t, out[1].Embedding, 16)

	again, err := GenerateEmbedding(context.Background(), impl, chunks)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestGenerateEmbeddingEmpty(t *testing.T) {
	out, err := GenerateEmbedding(context.Background(), embeddingtest.NewHash(8), nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestGenerateEmbeddingDimensionMismatch(t *testing.T) {
	impl, err := embeddings.NewEmbedder(raggedClient{})
	require.NoError(t, err)

	_, err = GenerateEmbedding(context.Background(), impl, []models.Chunk{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestEmbedderTimeout(t *testing.T) {
	e := Wrap(slowEmbedder{}, "test", "slow", 50*time.Millisecond)

	start := time.Now()
	_, err := e.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestChromemFuncUsesSameModel(t *testing.T) {
	hash := embeddingtest.NewHash(8)
	e := Wrap(hash, "test", "hash", 0)
	assert.Equal(t, "test/hash", e.Name())

	direct, err := e.EmbedQuery(context.Background(), "root orientation")
	require.NoError(t, err)
	viaFunc, err := e.ChromemFunc()(context.Background(), "root orientation")
	require.NoError(t, err)
	assert.Equal(t, direct, viaFunc)
}

func TestNewEmbedderRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.LLMConfig{Provider: "bogus", Model: "m"})
	assert.Error(t, err)
}

func TestNewEmbedderOllama(t *testing.T) {
	e, err := NewEmbedder(&config.LLMConfig{
		Provider:       config.ProviderOllama,
		BaseURL:        "http://localhost:11434",
		Model:          "all-minilm",
		TimeoutSeconds: 5,
		BatchSize:      16,
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama/all-minilm", e.Name())
}
