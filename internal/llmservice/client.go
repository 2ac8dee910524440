package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"bioexplorer/internal/config"
	"bioexplorer/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse means the endpoint answered without usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// GenerationError wraps every failure of a chat completion call: transport
// errors, timeouts, non-2xx replies (rate limiting included) and malformed
// responses.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Client sends role-aware chat requests to an OpenAI-compatible endpoint.
type Client struct {
	llm     llms.Model
	cfg     config.LLMConfig
	thinkRe *regexp.Regexp
}

// NewClient builds a client for the configured endpoint. The HTTP client
// carries the configured timeout so a stalled endpoint cannot block forever.
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating generation client")

	llm, err := openai.New(
		openai.WithBaseURL(strings.TrimSuffix(llmConfig.BaseURL, "/")),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
		openai.WithHTTPClient(&http.Client{Timeout: llmConfig.Timeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	return NewClientWithModel(llm, llmConfig), nil
}

// NewClientWithModel wraps an existing langchaingo model.
func NewClientWithModel(llm llms.Model, llmConfig *config.LLMConfig) *Client {
	return &Client{
		llm:     llm,
		cfg:     *llmConfig,
		thinkRe: regexp.MustCompile(models.ThinkTag),
	}
}

// BuildMessages returns the system and user messages for one question.
func BuildMessages(systemPrompt, contextBlock, question string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.UserPromptTemplate, contextBlock, question)),
	}
}

// Generate asks the model to answer question from contextBlock under the
// given system instruction. Any failure is returned as *GenerationError.
func (c *Client) Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error) {
	if c.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout())
		defer cancel()
	}

	messages := BuildMessages(systemPrompt, contextBlock, question)
	res, err := c.llm.GenerateContent(ctx, messages,
		llms.WithModel(c.cfg.Model),
		llms.WithMaxTokens(c.cfg.MaxTokens),
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithTopP(c.cfg.TopP),
	)
	if err != nil {
		return "", &GenerationError{Op: "chat completion", Err: err}
	}
	if res == nil || len(res.Choices) == 0 || res.Choices[0] == nil {
		return "", &GenerationError{Op: "decode response", Err: ErrEmptyResponse}
	}

	answer := strings.TrimSpace(c.thinkRe.ReplaceAllString(res.Choices[0].Content, ""))
	if answer == "" {
		return "", &GenerationError{Op: "decode response", Err: ErrEmptyResponse}
	}

	log.Debug().Int("answer_len", len(answer)).Str("stop_reason", res.Choices[0].StopReason).Msg("Generated answer")
	return answer, nil
}
