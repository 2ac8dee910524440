package rag

import (
	"errors"

	"bioexplorer/internal/llmservice"
)

var (
	// ErrRetrievalUnavailable marks a question answered without context
	// because the query could not be embedded or searched.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	ErrEmptyQuestion = errors.New("question is empty")
)

// GenerationError is returned when the language model call fails.
type GenerationError = llmservice.GenerationError
