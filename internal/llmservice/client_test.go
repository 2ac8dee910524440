package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bioexplorer/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig(baseURL string) *config.LLMConfig {
	return &config.LLMConfig{
		Provider:       config.ProviderOpenAI,
		BaseURL:        baseURL,
		Key:            "test-key",
		Model:          "test-model",
		MaxTokens:      10000,
		Temperature:    0.2,
		TopP:           0.9,
		TimeoutSeconds: 5,
	}
}

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestGenerateBuildsTwoMessages(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Roots bend [Source 1]."}}}}
	client := NewClientWithModel(fake, testConfig("http://unused"))

	answer, err := client.Generate(context.Background(), "SYSTEM", "[Source 1] T - U\nbody\n\n", "why?")
	require.NoError(t, err)
	assert.Equal(t, "Roots bend [Source 1].", answer)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, "SYSTEM", textOf(t, fake.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)

	user := textOf(t, fake.messages[1])
	assert.Contains(t, user, "Context:\n[Source 1] T - U\nbody")
	assert.Contains(t, user, "Question: why?")
	assert.Contains(t, user, "[Source 1], [Source 2]")

	assert.Equal(t, "test-model", fake.opts.Model)
	assert.Equal(t, 10000, fake.opts.MaxTokens)
	assert.InDelta(t, 0.2, fake.opts.Temperature, 1e-9)
	assert.InDelta(t, 0.9, fake.opts.TopP, 1e-9)
}

func TestGenerateStripsReasoning(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "<think>\nlet me think\n</think>\n\nAnswer [Source 2].",
	}}}}
	client := NewClientWithModel(fake, testConfig("http://unused"))

	answer, err := client.Generate(context.Background(), "s", "", "q")
	require.NoError(t, err)
	assert.Equal(t, "Answer [Source 2].", answer)
}

func TestGenerateErrorsAreGenerationErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeModel
	}{
		{"transport", &fakeModel{err: errors.New("connection refused")}},
		{"no choices", &fakeModel{resp: &llms.ContentResponse{}}},
		{"nil response", &fakeModel{}},
		{"only reasoning", &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "<think>x</think>"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClientWithModel(tt.fake, testConfig("http://unused"))

			answer, err := client.Generate(context.Background(), "s", "c", "q")
			assert.Empty(t, answer)

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.NotEmpty(t, genErr.Op)
		})
	}
}

func completionServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
			(*captured)["_path"] = r.URL.Path
			(*captured)["_auth"] = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestClientAgainstCompatibleEndpoint(t *testing.T) {
	captured := map[string]any{}
	server := completionServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Altered orientation [Source 1]."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, &captured)
	defer server.Close()

	client, err := NewClient(testConfig(server.URL + "/v1/"))
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "SYSTEM", "ctx", "How?")
	require.NoError(t, err)
	assert.Equal(t, "Altered orientation [Source 1].", answer)

	assert.Equal(t, "/v1/chat/completions", captured["_path"])
	assert.Equal(t, "Bearer test-key", captured["_auth"])
	assert.Equal(t, "test-model", captured["model"])
	assert.InDelta(t, 0.2, captured["temperature"], 1e-9)
	assert.InDelta(t, 0.9, captured["top_p"], 1e-9)

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestClientRateLimited(t *testing.T) {
	server := completionServer(t, http.StatusTooManyRequests, `{"error": {"message": "rate limit exceeded", "type": "rate_limit"}}`, nil)
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "s", "c", "q")
	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
}

func TestClientHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Generate(ctx, "s", "c", "q")
	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
	assert.Less(t, time.Since(start), 4*time.Second)
}
