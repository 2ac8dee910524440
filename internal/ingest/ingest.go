package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"bioexplorer/internal/chromemdb"
	"bioexplorer/internal/embedding"
	"bioexplorer/internal/helper"
	"bioexplorer/internal/metrics"
	"bioexplorer/internal/models"
	"bioexplorer/internal/parser"
)

var ErrEmptyCorpus = errors.New("no supported documents in corpus")

// Store is the write side of a vector store.
type Store interface {
	Reset(ctx context.Context) error
	Index(ctx context.Context, chunks []models.ChunkEmbedding) error
}

type Config struct {
	Concurrency int
	BatchSize   int
	// OnParsed is called after every document. Calls are serialized.
	OnParsed func(done, total int)
	// OnEmbedded is called after every embedded batch with its size.
	OnEmbedded func(n int)
}

// Ingestor rebuilds a vector store from a corpus directory. It must be the
// only writer of the store while it runs.
type Ingestor struct {
	store    Store
	embedder embeddings.Embedder
	splitter *parser.Splitter
	catalog  *parser.Catalog
	config   Config
	metrics  *metrics.Metrics
}

type Result struct {
	Documents int
	Skipped   int
	Chunks    int
	Dimension int
	Duration  time.Duration
}

func NewIngestor(store Store, embedder embeddings.Embedder, splitter *parser.Splitter, catalog *parser.Catalog, config Config, m *metrics.Metrics) *Ingestor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.BatchSize < 1 {
		config.BatchSize = 64
	}
	return &Ingestor{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		catalog:  catalog,
		config:   config,
		metrics:  m,
	}
}

// Run parses every supported file of corpusDir, attaches publication
// metadata by file ordinal, embeds the chunks and replaces the store content.
// The store is left untouched when the corpus is empty or when parsing or
// embedding fails.
func (in *Ingestor) Run(ctx context.Context, corpusDir string) (*Result, error) {
	start := time.Now()

	files, err := listCorpus(corpusDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, corpusDir)
	}
	log.Info().Str("dir", corpusDir).Int("files", len(files)).Msg("Ingesting corpus")

	chunks, skipped, err := in.parseAll(ctx, corpusDir, files)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: every document was empty or unreadable", ErrEmptyCorpus)
	}

	// embed everything before touching the store so a failing embedder
	// leaves the previous index in place
	embedded := make([]models.ChunkEmbedding, 0, len(chunks))
	dim := 0
	for offset := 0; offset < len(chunks); offset += in.config.BatchSize {
		batch := chunks[offset:min(offset+in.config.BatchSize, len(chunks))]

		out, err := embedding.GenerateEmbedding(ctx, in.embedder, batch)
		if err != nil {
			return nil, err
		}
		if dim == 0 {
			dim = len(out[0].Embedding)
		} else if got := len(out[0].Embedding); got != dim {
			return nil, fmt.Errorf("%w: batch at %d has %d dimensions, expected %d", embedding.ErrDimensionMismatch, offset, got, dim)
		}
		embedded = append(embedded, out...)
		if in.config.OnEmbedded != nil {
			in.config.OnEmbedded(len(out))
		}
	}

	if err := in.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset vector store: %w", err)
	}
	for offset := 0; offset < len(embedded); offset += in.config.BatchSize {
		batch := embedded[offset:min(offset+in.config.BatchSize, len(embedded))]
		if err := in.store.Index(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to index chunks: %w", err)
		}
		if in.metrics != nil {
			in.metrics.IngestedChunks.Add(float64(len(batch)))
		}
	}

	res := &Result{
		Documents: len(files) - skipped,
		Skipped:   skipped,
		Chunks:    len(chunks),
		Dimension: dim,
		Duration:  time.Since(start),
	}
	log.Info().
		Int("documents", res.Documents).
		Int("skipped", res.Skipped).
		Int("chunks", res.Chunks).
		Int("dimension", res.Dimension).
		Dur("took", res.Duration).
		Msg("Vector store rebuilt")
	return res, nil
}

// parseAll extracts and splits files concurrently and returns the chunks in
// file order, so repeated runs assign the same ordinals.
func (in *Ingestor) parseAll(ctx context.Context, dir string, files []string) ([]models.Chunk, int, error) {
	perFile := make([][]models.Chunk, len(files))
	var skipped atomic.Int32
	var progressMu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Concurrency)
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer func() {
				progressMu.Lock()
				defer progressMu.Unlock()
				done++
				if in.config.OnParsed != nil {
					in.config.OnParsed(done, len(files))
				}
			}()

			texts, err := in.splitter.ParseFile(filepath.Join(dir, name))
			if err != nil || len(texts) == 0 {
				if err != nil {
					log.Warn().Err(err).Str("file", name).Msg("Skipping document")
				} else {
					log.Warn().Str("file", name).Msg("Skipping empty document")
				}
				skipped.Add(1)
				if in.metrics != nil {
					in.metrics.SkippedDocuments.Inc()
				}
				return nil
			}

			meta := models.ChunkMetadata{SourceFilename: name}
			if pub, ok := in.catalog.Lookup(name); ok {
				meta.Title = pub.Title
				meta.URL = pub.URL
			}
			chunks := make([]models.Chunk, len(texts))
			for n, text := range texts {
				chunks[n] = models.Chunk{
					ID:       helper.ChunkID(name, n),
					Content:  text,
					Metadata: meta,
				}
			}
			perFile[i] = chunks
			if in.metrics != nil {
				in.metrics.IngestedDocuments.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var all []models.Chunk
	for _, chunks := range perFile {
		all = append(all, chunks...)
	}
	return all, int(skipped.Load()), nil
}

// listCorpus returns the supported files of dir, numbered files first in
// numeric order, then the rest by name.
func listCorpus(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !parser.Supported(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}

	sort.Slice(files, func(i, j int) bool {
		ni, iok := parser.Ordinal(files[i])
		nj, jok := parser.Ordinal(files[j])
		switch {
		case iok && jok && ni != nj:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return files[i] < files[j]
		}
	})
	return files, nil
}

// Manifest describes a finished run for the store directory.
func (r *Result) Manifest(collection, embeddingModel string, chunkSize, chunkOverlap int) *chromemdb.Manifest {
	return &chromemdb.Manifest{
		Collection:     collection,
		EmbeddingModel: embeddingModel,
		Dimension:      r.Dimension,
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		Documents:      r.Documents,
		Chunks:         r.Chunks,
		BuiltAt:        time.Now().UTC(),
	}
}
