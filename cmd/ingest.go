package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"bioexplorer/internal/chromemdb"
	"bioexplorer/internal/config"
	"bioexplorer/internal/embedding"
	"bioexplorer/internal/ingest"
	"bioexplorer/internal/metrics"
	"bioexplorer/internal/parser"
)

func ingestCMD(opts *rootOptions) *cobra.Command {
	var corpusDir, indexPath, metricsFile string
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the vector store from the corpus directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.ScopeIngest)
			if err != nil {
				return err
			}
			if corpusDir != "" {
				cfg.RAG.CorpusDir = corpusDir
			}
			if indexPath != "" {
				cfg.RAG.PublicationIndex = indexPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			catalog, err := loadCatalog(cfg.RAG.PublicationIndex)
			if err != nil {
				return err
			}
			splitter, err := parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
			if err != nil {
				return err
			}
			emb, err := embedding.NewEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			store, closeStore, err := openWriteStore(ctx, cfg, emb)
			if err != nil {
				return err
			}
			defer closeStore()

			ingestConfig := ingest.Config{
				Concurrency: cfg.RAG.Concurrency,
				BatchSize:   cfg.EmbedLLM.BatchSize,
			}
			var parseBar, embedBar *progressbar.ProgressBar
			if !noProgress {
				ingestConfig.OnParsed = func(done, total int) {
					if parseBar == nil {
						parseBar = getProgressBar(total, "Parsing documents")
					}
					_ = parseBar.Set(done)
				}
				embedBar = getSpinner("Embedding chunks")
				ingestConfig.OnEmbedded = func(n int) { _ = embedBar.Add(n) }
			}

			var m *metrics.Metrics
			if metricsFile != "" {
				m = metrics.New()
			}
			res, err := ingest.NewIngestor(store, emb, splitter, catalog, ingestConfig, m).Run(ctx, cfg.RAG.CorpusDir)
			if embedBar != nil {
				_ = embedBar.Finish()
			}
			if err != nil {
				return err
			}

			if cfg.RAG.Backend == config.BackendChromem {
				manifest := res.Manifest(cfg.RAG.Collection, emb.Name(), cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
				if err := chromemdb.WriteManifest(cfg.RAG.VectorDir, manifest); err != nil {
					return err
				}
			}

			if m != nil {
				if err := m.WriteTextfile(metricsFile); err != nil {
					return err
				}
				log.Info().Str("file", metricsFile).Msg("Wrote ingest metrics")
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Indexed %d chunks from %d documents (%d skipped) in %s",
				res.Chunks, res.Documents, res.Skipped, res.Duration.Round(time.Millisecond)))
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusDir, "corpus", "", "corpus directory (overrides config)")
	cmd.Flags().StringVar(&indexPath, "index", "", "publication index .csv or .xlsx (overrides config)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write ingest metrics in Prometheus text format to this file")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	return cmd
}

// loadCatalog returns nil when the index file does not exist; chunks then
// carry no title or url.
func loadCatalog(path string) (*parser.Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("Publication index not found, citations will use placeholders")
		return nil, nil
	}
	return parser.LoadCatalog(path)
}
