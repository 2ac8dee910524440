package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"bioexplorer/internal/chromemdb"
	"bioexplorer/internal/config"
	"bioexplorer/internal/db"
	"bioexplorer/internal/embedding"
	"bioexplorer/internal/ingest"
	"bioexplorer/internal/rag"
)

// openSearchIndex opens the configured store for serving. The chromem
// directory is never created here.
func openSearchIndex(ctx context.Context, cfg *config.Config, emb *embedding.Embedder) (rag.VectorIndex, func(), error) {
	switch cfg.RAG.Backend {
	case config.BackendPostgres:
		store, err := openPostgres(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		if err := checkManifest(cfg.RAG.VectorDir, emb.Name()); err != nil {
			return nil, nil, err
		}
		return chromemdb.OpenReadOnly(cfg.RAG.VectorDir, cfg.RAG.Collection, emb.ChromemFunc()), func() {}, nil
	}
}

// openWriteStore opens the configured store for ingestion.
func openWriteStore(ctx context.Context, cfg *config.Config, emb *embedding.Embedder) (ingest.Store, func(), error) {
	switch cfg.RAG.Backend {
	case config.BackendPostgres:
		store, err := openPostgres(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := store.InitDB(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		m, err := openChromemWriter(cfg, emb)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
}

func openChromemWriter(cfg *config.Config, emb *embedding.Embedder) (*chromemdb.VectorDBManager, error) {
	return chromemdb.NewVectorDBManager(
		cfg.RAG.VectorDir,
		cfg.RAG.Collection,
		false,
		cfg.RAG.Compress,
		cfg.RAG.EncryptionKey,
		emb.ChromemFunc(),
	)
}

func openPostgres(dbConfig *config.DatabaseConfig) (*db.Store, error) {
	sqldb, err := db.ConnectDB(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db.NewStore(db.NewDB(sqldb, dbConfig.Debug), dbConfig.Table, dbConfig.Dimension), nil
}

// checkManifest refuses to serve a store built with another embedding model.
func checkManifest(dir, embeddingModel string) error {
	m, err := chromemdb.ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("dir", dir).Msg("Vector store has no manifest, embedding model not verified")
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.CheckModel(embeddingModel); err != nil {
		return &config.ConfigurationError{Problems: []config.ValidationError{{
			Field:   "embed_llm.model",
			Message: err.Error(),
		}}}
	}
	return nil
}
