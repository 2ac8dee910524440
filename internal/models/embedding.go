package models

// ChunkMetadata is the citation data carried by every chunk.
type ChunkMetadata struct {
	Title          string `json:"title,omitempty" yaml:"title,omitempty"`
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	SourceFilename string `json:"source_filename,omitempty" yaml:"source_filename,omitempty"`
}

// Chunk is one indexed window of a source document.
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkEmbedding pairs a chunk with its vector for indexing.
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// RetrievalResult is a chunk returned by a similarity search.
type RetrievalResult struct {
	Chunk Chunk
	Score float32
}

// Source is a deduplicated citation returned next to an answer.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// QueryResponse is the result of answering one question.
type QueryResponse struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// MetadataMap flattens the chunk metadata into the string map stored by the vector index.
func (c Chunk) MetadataMap() map[string]string {
	m := make(map[string]string, 3)
	if c.Metadata.Title != "" {
		m[MetaTitle] = c.Metadata.Title
	}
	if c.Metadata.URL != "" {
		m[MetaURL] = c.Metadata.URL
	}
	if c.Metadata.SourceFilename != "" {
		m[MetaSourceFilename] = c.Metadata.SourceFilename
	}
	return m
}

// MetadataFromMap is the inverse of MetadataMap; missing keys stay empty.
func MetadataFromMap(m map[string]string) ChunkMetadata {
	return ChunkMetadata{
		Title:          m[MetaTitle],
		URL:            m[MetaURL],
		SourceFilename: m[MetaSourceFilename],
	}
}
