package rag

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioexplorer/internal/chromemdb"
	"bioexplorer/internal/embedding/embeddingtest"
	"bioexplorer/internal/metrics"
	"bioexplorer/internal/models"
	"bioexplorer/internal/prompt"
)

const testDim = 256

type generateCall struct {
	system, context, question string
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  []generateCall
	answer string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{systemPrompt, contextBlock, question})
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) last(t *testing.T) generateCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type failingIndex struct{ err error }

func (f failingIndex) Search(context.Context, []float32, int) ([]models.RetrievalResult, error) {
	return nil, f.err
}

func botanyIndex(t *testing.T, h *embeddingtest.Hash) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager("", "publications", true, false, "", h.EmbedQuery)
	require.NoError(t, err)

	chunks := []models.Chunk{
		{ID: "1", Content: "Plants grown in microgravity show altered root orientation.", Metadata: models.ChunkMetadata{Title: "Space Botany", URL: "http://x/1", SourceFilename: "0.txt"}},
		{ID: "2", Content: "Bone density of astronauts declines on long missions.", Metadata: models.ChunkMetadata{Title: "Bone Loss", URL: "http://x/2", SourceFilename: "1.txt"}},
		{ID: "3", Content: "Bacteria grown in lunar regolith.", Metadata: models.ChunkMetadata{Title: "Lunar Microbes", SourceFilename: "2.txt"}},
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := h.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	embedded := make([]models.ChunkEmbedding, len(chunks))
	for i := range chunks {
		embedded[i] = models.ChunkEmbedding{Chunk: chunks[i], Embedding: vecs[i]}
	}
	require.NoError(t, m.Index(context.Background(), embedded))
	return m
}

func TestAnswerEndToEnd(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	gen := &fakeGenerator{answer: "Roots lose their usual orientation in microgravity [Source 1]."}
	m := metrics.New()
	r := NewRAG(botanyIndex(t, h), h, gen, WithMetrics(m))

	resp, err := r.Answer(context.Background(), "How does microgravity affect plant roots?", "")
	require.NoError(t, err)

	assert.Contains(t, resp.Response, "[Source 1]")
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, models.Source{ID: "Source 1", Title: "Space Botany", URL: "http://x/1"}, resp.Sources[0])
	assert.LessOrEqual(t, len(resp.Sources), models.TopK)

	call := gen.last(t)
	assert.Equal(t, prompt.Scientist.Template(), call.system)
	assert.Equal(t, "How does microgravity affect plant roots?", call.question)
	assert.Contains(t, call.context, "[Source 1] Space Botany - http://x/1\nPlants grown in microgravity show altered root orientation.\n\n")
	assert.Contains(t, call.context, "Lunar Microbes - No URL")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("scientist", metrics.OutcomeOK)))
}

func TestAnswerSingleChunkStudent(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	idx, err := chromemdb.NewVectorDBManager("", "publications", true, false, "", h.EmbedQuery)
	require.NoError(t, err)
	content := "Plants grown in microgravity show altered root orientation."
	vec, err := h.EmbedQuery(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), []models.ChunkEmbedding{{
		Chunk:     models.Chunk{ID: "1", Content: content, Metadata: models.ChunkMetadata{Title: "Space Botany", URL: "http://x/1"}},
		Embedding: vec,
	}}))

	gen := &fakeGenerator{answer: "In microgravity, roots grow without a clear direction [Source 1]."}
	resp, err := NewRAG(idx, h, gen).Answer(context.Background(), "How does microgravity affect plant roots?", "student")
	require.NoError(t, err)

	assert.Equal(t, []models.Source{{ID: "Source 1", Title: "Space Botany", URL: "http://x/1"}}, resp.Sources)
	assert.Contains(t, resp.Response, "[Source 1]")
	assert.Equal(t, prompt.Student.Template(), gen.last(t).system)
	assert.Equal(t, "[Source 1] Space Botany - http://x/1\n"+content+"\n\n", gen.last(t).context)
}

func TestAnswerDegradesOnStoreDimensionMismatch(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	m := metrics.New()
	gen := &fakeGenerator{answer: "The provided context does not contain this information."}
	// the store holds testDim vectors, queries are embedded with half of that
	r := NewRAG(botanyIndex(t, h), embeddingtest.NewHash(testDim/2), gen, WithMetrics(m))

	resp, err := r.Answer(context.Background(), "How does microgravity affect plant roots?", "")
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "", gen.last(t).context)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrievalDegraded.WithLabelValues("search")))
}

func TestAnswerUsesRoleTemplate(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	gen := &fakeGenerator{answer: "ok"}
	r := NewRAG(botanyIndex(t, h), h, gen)

	for _, tc := range []struct {
		role string
		want prompt.Role
	}{
		{"manager", prompt.Manager},
		{" Architect ", prompt.Architect},
		{"student", prompt.Student},
		{"astronaut", prompt.Scientist},
	} {
		_, err := r.Answer(context.Background(), "bone density", tc.role)
		require.NoError(t, err)
		assert.Equal(t, tc.want.Template(), gen.last(t).system, tc.role)
	}
}

func TestAnswerEmptyIndex(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	idx, err := chromemdb.NewVectorDBManager("", "publications", true, false, "", h.EmbedQuery)
	require.NoError(t, err)
	gen := &fakeGenerator{answer: "The provided context does not contain this information."}

	resp, err := NewRAG(idx, h, gen).Answer(context.Background(), "What about Mars?", "student")
	require.NoError(t, err)
	assert.Equal(t, "", gen.last(t).context)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)

	// sources must serialise as [] rather than null
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"The provided context does not contain this information.","sources":[]}`, string(raw))
}

func TestAnswerDegradesOnRetrievalFailure(t *testing.T) {
	gen := &fakeGenerator{answer: "fallback"}

	t.Run("search", func(t *testing.T) {
		m := metrics.New()
		r := NewRAG(failingIndex{err: errors.New("corrupt store")}, embeddingtest.NewHash(testDim), gen, WithMetrics(m))
		resp, err := r.Answer(context.Background(), "roots", "")
		require.NoError(t, err)
		assert.Equal(t, "fallback", resp.Response)
		assert.Empty(t, resp.Sources)
		assert.Equal(t, "", gen.last(t).context)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrievalDegraded.WithLabelValues("search")))
	})

	t.Run("embed", func(t *testing.T) {
		m := metrics.New()
		h := &embeddingtest.Hash{Dim: testDim, Err: errors.New("embedder down")}
		r := NewRAG(failingIndex{}, h, gen, WithMetrics(m))
		resp, err := r.Answer(context.Background(), "roots", "")
		require.NoError(t, err)
		assert.Empty(t, resp.Sources)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrievalDegraded.WithLabelValues("embed")))
	})
}

func TestAnswerPropagatesGenerationError(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	genErr := &GenerationError{Op: "chat completion", Err: errors.New("status 429")}
	m := metrics.New()
	r := NewRAG(botanyIndex(t, h), h, &fakeGenerator{err: genErr}, WithMetrics(m))

	resp, err := r.Answer(context.Background(), "roots", "manager")
	assert.Nil(t, resp)
	var target *GenerationError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "chat completion", target.Op)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("manager", metrics.OutcomeGenerationError)))
}

func TestAnswerRejectsBlankQuestion(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	gen := &fakeGenerator{answer: "x"}
	r := NewRAG(botanyIndex(t, h), h, gen)
	calls := h.Calls()

	for _, q := range []string{"", "   ", "\n\t"} {
		resp, err := r.Answer(context.Background(), q, "")
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Equal(t, calls, h.Calls())
	assert.Empty(t, gen.calls)
}

func TestAnswerIsDeterministicAndConcurrent(t *testing.T) {
	h := embeddingtest.NewHash(testDim)
	gen := &fakeGenerator{answer: "answer [Source 1]"}
	r := NewRAG(botanyIndex(t, h), h, gen)

	want, err := r.Answer(context.Background(), "plants grown in microgravity", "scientist")
	require.NoError(t, err)
	wantContext := gen.last(t).context

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	got := make([]*models.QueryResponse, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := r.Answer(context.Background(), "plants grown in microgravity", "scientist")
			if err != nil {
				errs <- err
				return
			}
			got[i] = resp
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, resp := range got {
		assert.Equal(t, want, resp)
	}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	for _, c := range gen.calls {
		assert.Equal(t, wantContext, c.context)
	}
}
