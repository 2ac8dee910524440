package chromemdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestFile = "manifest.yaml"

// ErrModelMismatch means the store was built with another embedding model
// than the one configured for queries.
var ErrModelMismatch = errors.New("embedding model mismatch")

// Manifest describes how a vector store was built.
type Manifest struct {
	Collection     string    `yaml:"collection"`
	EmbeddingModel string    `yaml:"embedding_model"`
	Dimension      int       `yaml:"dimension"`
	ChunkSize      int       `yaml:"chunk_size"`
	ChunkOverlap   int       `yaml:"chunk_overlap"`
	Documents      int       `yaml:"documents"`
	Chunks         int       `yaml:"chunks"`
	BuiltAt        time.Time `yaml:"built_at"`
}

func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// RemoveManifest deletes the manifest of dir. A missing manifest is not an
// error.
func RemoveManifest(dir string) error {
	if err := os.Remove(filepath.Join(dir, manifestFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// ReadManifest returns an error wrapping os.ErrNotExist when the store has
// no manifest.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// CheckModel verifies the store was embedded with embeddingModel.
func (m *Manifest) CheckModel(embeddingModel string) error {
	if m.EmbeddingModel != "" && m.EmbeddingModel != embeddingModel {
		return fmt.Errorf("%w: store built with %q, configured %q", ErrModelMismatch, m.EmbeddingModel, embeddingModel)
	}
	return nil
}
