package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"bioexplorer/internal/config"
	"bioexplorer/internal/models"
)

const insertBatchSize = 500

type Document struct {
	bun.BaseModel  `bun:"table:publication_chunks,alias:d"`
	ID             string          `bun:"id,pk"`
	Ordinal        int64           `bun:"ordinal,notnull"`
	Content        string          `bun:"content,notnull"`
	Title          string          `bun:"title"`
	URL            string          `bun:"url"`
	SourceFilename string          `bun:"source_filename"`
	Embedding      pgvector.Vector `bun:"embedding,notnull"`
	Score          float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	if dbConfig.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	opts := []pgdriver.Option{
		pgdriver.WithDSN(dbConfig.URL),
		pgdriver.WithTimeout(30 * time.Second),
	}
	if dbConfig.Password != "" {
		opts = append(opts, pgdriver.WithPassword(dbConfig.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// Store is a pgvector-backed vector index with the same contract as the
// chromem store: cosine similarity, ties ordered by insertion ordinal.
type Store struct {
	db        *bun.DB
	table     string
	dimension int
}

func NewStore(db *bun.DB, table string, dimension int) *Store {
	return &Store{db: db, table: table, dimension: dimension}
}

// InitDB creates the extension, table and cosine index when missing.
func (s *Store) InitDB(ctx context.Context) error {
	table := pq.QuoteIdentifier(s.table)
	index := pq.QuoteIdentifier(s.table + "_embedding_idx")

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			ordinal BIGINT NOT NULL,
			content TEXT NOT NULL,
			title TEXT,
			url TEXT,
			source_filename TEXT,
			embedding vector(%d) NOT NULL
		)`, table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, index, table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return nil
}

// Reset drops the table and recreates it.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pq.QuoteIdentifier(s.table))); err != nil {
		return fmt.Errorf("failed to drop documents: %w", err)
	}
	return s.InitDB(ctx)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).ModelTableExpr("? AS d", bun.Ident(s.table)).Count(ctx)
}

// Index stores chunk embeddings in batches, continuing the ordinal sequence.
func (s *Store) Index(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	offset, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	docs := make([]Document, len(chunks))
	for i, ce := range chunks {
		if len(ce.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s has %d dimensions, table expects %d", ce.ID, len(ce.Embedding), s.dimension)
		}
		docs[i] = Document{
			ID:             ce.ID,
			Ordinal:        int64(offset + i),
			Content:        ce.Content,
			Title:          ce.Metadata.Title,
			URL:            ce.Metadata.URL,
			SourceFilename: ce.Metadata.SourceFilename,
			Embedding:      pgvector.NewVector(ce.Embedding),
		}
	}

	for start := 0; start < len(docs); start += insertBatchSize {
		batch := docs[start:min(start+insertBatchSize, len(docs))]
		_, err := s.db.NewInsert().
			Model(&batch).
			ModelTableExpr("?", bun.Ident(s.table)).
			ExcludeColumn("score").
			On("CONFLICT (id) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("title = EXCLUDED.title").
			Set("url = EXCLUDED.url").
			Set("source_filename = EXCLUDED.source_filename").
			Set("embedding = EXCLUDED.embedding").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
	}
	log.Debug().Str("table", s.table).Int("chunks", len(docs)).Msg("Stored documents")
	return nil
}

// Search returns the k nearest chunks by cosine distance. An empty table
// yields an empty result; query failures are returned.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.RetrievalResult, error) {
	results := []models.RetrievalResult{}
	if k <= 0 {
		return results, nil
	}

	q := pgvector.NewVector(queryEmbedding)
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Column("id", "ordinal", "content", "title", "url", "source_filename").
		ColumnExpr("1 - (embedding <=> ?) AS score", q).
		OrderExpr("embedding <=> ? ASC", q).
		OrderExpr("ordinal ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity query on %s failed: %w", s.table, err)
	}

	for _, d := range docs {
		results = append(results, models.RetrievalResult{
			Chunk: models.Chunk{
				ID:      d.ID,
				Content: d.Content,
				Metadata: models.ChunkMetadata{
					Title:          d.Title,
					URL:            d.URL,
					SourceFilename: d.SourceFilename,
				},
			},
			Score: d.Score,
		})
	}
	return results, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
