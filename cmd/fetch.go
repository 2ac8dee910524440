package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bioexplorer/internal/config"
	"bioexplorer/internal/fetch"
	"bioexplorer/internal/parser"
)

func fetchCMD(opts *rootOptions) *cobra.Command {
	var outDir, indexPath string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download publication texts listed in the publication index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.ScopeFetch)
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.RAG.CorpusDir = outDir
			}
			if indexPath != "" {
				cfg.RAG.PublicationIndex = indexPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			catalog, err := parser.LoadCatalog(cfg.RAG.PublicationIndex)
			if err != nil {
				return err
			}

			bar := getProgressBar(catalog.Len(), "Fetching publications")
			f := fetch.NewFetcher(fetch.FetcherConfig{
				OutDir:     cfg.RAG.CorpusDir,
				RateLimit:  cfg.Fetch.RateLimit,
				Timeout:    cfg.Fetch.Timeout(),
				UserAgent:  cfg.Fetch.UserAgent,
				OnProgress: func(int, string) { _ = bar.Add(1) },
			})
			stats, err := f.FetchAll(ctx, catalog)
			_ = bar.Finish()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Fetched %d, skipped %d, failed %d",
				stats.Fetched, stats.Skipped, stats.Failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (overrides rag.corpus_dir)")
	cmd.Flags().StringVar(&indexPath, "index", "", "publication index .csv or .xlsx (overrides config)")
	return cmd
}
