package models

const (
	// TopK is the number of chunks retrieved per question.
	TopK = 5

	// Ingestion windows, in characters.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	UnknownTitle = "Unknown Title"
	NoURL        = "No URL"

	// SourceLabelFormat renders a Source id and the rank tokens in the context block.
	SourceLabelFormat = "Source %d"

	MetaTitle          = "title"
	MetaURL            = "url"
	MetaSourceFilename = "source_filename"
	MetaOrdinal        = "ordinal"

	ThinkTag = `(?s)<think>.*?</think>`
)

var (
	// ContextBlockTemplate is one numbered entry of the context handed to the model.
	ContextBlockTemplate = "[Source %d] %s - %s\n%s\n\n"

	UserPromptTemplate = `Context:
%s

Question: %s

When responding, cite sources inline as [Source 1], [Source 2], etc., corresponding to the numbered context blocks above.`
)
