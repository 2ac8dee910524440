package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Scope selects which parts of the config a command depends on.
type Scope int

const (
	// ScopeIngest covers the embedding model and the vector store.
	ScopeIngest Scope = iota
	// ScopeServe additionally requires the generation endpoint.
	ScopeServe
	// ScopeFetch covers downloading the corpus only.
	ScopeFetch
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigurationError is returned at startup when the process cannot run with
// the loaded configuration.
type ConfigurationError struct {
	Problems []ValidationError
}

func (e *ConfigurationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate returns a *ConfigurationError listing every problem, or nil.
func (c *Config) Validate(scope Scope) error {
	var errors []ValidationError

	switch scope {
	case ScopeFetch:
		errors = append(errors, c.validateFetch()...)
	case ScopeServe:
		errors = append(errors, c.validateGeneration()...)
		fallthrough
	default:
		errors = append(errors, c.validateEmbedding()...)
		errors = append(errors, c.validateStore()...)
	}

	if len(errors) == 0 {
		return nil
	}
	return &ConfigurationError{Problems: errors}
}

func (c *Config) validateGeneration() []ValidationError {
	var errors []ValidationError

	if c.LLM.Provider != ProviderOpenAI {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: "generation requires an OpenAI-compatible endpoint",
		})
	}
	if !validURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "a valid http(s) base URL is required",
		})
	}
	if strings.TrimSpace(c.LLM.Key) == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.key",
			Message: "API key is required (set NEBIUS_API_KEY or LLM_API_KEY)",
		})
	}
	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}
	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be positive",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.top_p",
			Message: "top_p must be in (0, 1]",
		})
	}
	if c.LLM.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_seconds",
			Message: "timeout must be positive",
		})
	}
	return errors
}

func (c *Config) validateEmbedding() []ValidationError {
	var errors []ValidationError

	switch c.EmbedLLM.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if strings.TrimSpace(c.EmbedLLM.Key) == "" {
			errors = append(errors, ValidationError{
				Field:   "embed_llm.key",
				Message: "API key is required for the openai embedding provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embed_llm.provider",
			Message: fmt.Sprintf("unsupported provider %q", c.EmbedLLM.Provider),
		})
	}
	if c.EmbedLLM.BaseURL != "" && !validURL(c.EmbedLLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "embed_llm.base_url",
			Message: "invalid base URL",
		})
	}
	if c.EmbedLLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "embed_llm.model",
			Message: "model is required",
		})
	}
	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	switch c.RAG.Backend {
	case BackendChromem:
		if c.RAG.VectorDir == "" {
			errors = append(errors, ValidationError{
				Field:   "rag.vector_dir",
				Message: "vector_dir is required for the chromem backend",
			})
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "url is required for the postgres backend (set DATABASE_URL)",
			})
		}
		if c.Database.Dimension < 1 {
			errors = append(errors, ValidationError{
				Field:   "database.dimension",
				Message: "dimension must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "rag.backend",
			Message: fmt.Sprintf("unsupported backend %q", c.RAG.Backend),
		})
	}

	if c.RAG.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}
	return errors
}

func (c *Config) validateFetch() []ValidationError {
	var errors []ValidationError

	if c.RAG.PublicationIndex == "" {
		errors = append(errors, ValidationError{
			Field:   "rag.publication_index",
			Message: "publication_index is required to fetch texts",
		})
	}
	if c.RAG.CorpusDir == "" {
		errors = append(errors, ValidationError{
			Field:   "rag.corpus_dir",
			Message: "corpus_dir is required to fetch texts",
		})
	}
	if c.Fetch.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.rate_limit",
			Message: "rate_limit must be positive",
		})
	}
	if c.Fetch.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetch.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}
	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
