package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"bioexplorer/internal/models"
)

var (
	ErrReadOnly      = errors.New("vector database opened read-only")
	ErrNoCollection  = errors.New("collection is not available")
	ErrEncryptionKey = errors.New("encryption key must be 32 bytes")
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embedFunc      chromem.EmbeddingFunc
	dbPath         string
	compress       bool
	encryptionKey  string
	readOnly       bool
	// reason is set when a read-only store could not be opened.
	reason error
}

// NewVectorDBManager opens (or creates) a writable store and its collection.
// It is used by ingestion, which must be the only writer of dbPath.
func NewVectorDBManager(dbPath, collectionName string, inMemory, compress bool, encryptionKey string, embedFunc chromem.EmbeddingFunc) (*VectorDBManager, error) {
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, ErrEncryptionKey
	}

	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:             db,
		collectionName: collectionName,
		embedFunc:      embedFunc,
		dbPath:         dbPath,
		compress:       compress,
		encryptionKey:  encryptionKey,
	}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenReadOnly opens an existing store for query serving. It never creates
// the directory or the collection: when either is missing or unreadable the
// manager is returned in an unavailable state and every search is empty.
func OpenReadOnly(dbPath, collectionName string, embedFunc chromem.EmbeddingFunc) *VectorDBManager {
	m := &VectorDBManager{
		collectionName: collectionName,
		embedFunc:      embedFunc,
		dbPath:         dbPath,
		readOnly:       true,
	}

	info, err := os.Stat(dbPath)
	switch {
	case err != nil:
		m.reason = fmt.Errorf("vector store %s: %w", dbPath, err)
	case !info.IsDir():
		m.reason = fmt.Errorf("vector store %s is not a directory", dbPath)
	default:
		db, err := chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			m.reason = fmt.Errorf("failed to load vector store %s: %w", dbPath, err)
			break
		}
		m.db = db
		m.collection = db.GetCollection(collectionName, embedFunc)
		if m.collection == nil {
			m.reason = fmt.Errorf("%w: %s", ErrNoCollection, collectionName)
		}
	}

	if m.reason != nil {
		log.Warn().Err(m.reason).Msg("Vector store unavailable, answers will have no context")
	} else {
		log.Info().Str("path", dbPath).Str("collection", collectionName).Int("chunks", m.collection.Count()).Msg("Opened vector store")
	}
	return m
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	if m.readOnly {
		return nil, ErrReadOnly
	}
	c, err := m.db.GetOrCreateCollection(collectionName, nil, m.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	m.collectionName = collectionName
	return c, nil
}

// Available reports whether searches can reach a collection.
func (m *VectorDBManager) Available() bool {
	return m.collection != nil
}

// Count returns the number of indexed chunks, 0 when unavailable.
func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// Index adds chunk embeddings to the collection. Each chunk records its
// insertion ordinal so searches can order equally similar chunks.
func (m *VectorDBManager) Index(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if m.collection == nil {
		return ErrNoCollection
	}
	if len(chunks) == 0 {
		return nil
	}

	offset := m.collection.Count()
	docs := make([]chromem.Document, len(chunks))
	for i, ce := range chunks {
		meta := ce.MetadataMap()
		meta[models.MetaOrdinal] = strconv.Itoa(offset + i)
		docs[i] = chromem.Document{
			ID:        ce.ID,
			Content:   ce.Content,
			Metadata:  meta,
			Embedding: ce.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k chunks most similar to queryEmbedding, most similar
// first, equal scores in insertion order. An empty or unavailable store
// yields an empty result; a failing query is returned as an error.
func (m *VectorDBManager) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.RetrievalResult, error) {
	results := []models.RetrievalResult{}
	if m.collection == nil {
		log.Warn().Err(m.reason).Msg("Search on unavailable vector store")
		return results, nil
	}

	count := m.collection.Count()
	if count == 0 || k <= 0 {
		return results, nil
	}

	// chromem scores every document anyway; asking for all of them keeps
	// ties at the k-th position out of its unordered selection.
	found, err := m.collection.QueryEmbedding(ctx, queryEmbedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query on %s failed: %w", m.collectionName, err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Similarity != found[j].Similarity {
			return found[i].Similarity > found[j].Similarity
		}
		return ordinal(found[i].Metadata) < ordinal(found[j].Metadata)
	})
	if len(found) > k {
		found = found[:k]
	}

	for _, r := range found {
		results = append(results, models.RetrievalResult{
			Chunk: models.Chunk{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: models.MetadataFromMap(r.Metadata),
			},
			Score: r.Similarity,
		})
	}
	return results, nil
}

func ordinal(meta map[string]string) int {
	n, err := strconv.Atoi(meta[models.MetaOrdinal])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// Reset drops and recreates the collection before a full rebuild. The
// manifest goes with it; ingestion writes a new one once indexing succeeds.
func (m *VectorDBManager) Reset(_ context.Context) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if m.dbPath != "" {
		if err := RemoveManifest(m.dbPath); err != nil {
			return err
		}
	}
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(m.collectionName)
	return err
}

// SnapshotPath is the default export file inside the store directory.
func (m *VectorDBManager) SnapshotPath() string {
	name := m.collectionName + ".gob"
	if m.compress {
		name += ".gz"
	}
	if m.encryptionKey != "" {
		name += ".enc"
	}
	return filepath.Join(m.dbPath, name)
}

// Export writes the collection to a single file, encrypted when a key is set.
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if filePath == "" {
		filePath = m.SnapshotPath()
	}

	log.Debug().Str("collection", m.collectionName).Str("file", filePath).Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads a collection snapshot written by Export.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if filePath == "" {
		filePath = m.SnapshotPath()
	}
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.collection = m.db.GetCollection(m.collectionName, m.embedFunc)
	if m.collection == nil {
		return fmt.Errorf("%w: %s not in snapshot", ErrNoCollection, m.collectionName)
	}
	return nil
}
