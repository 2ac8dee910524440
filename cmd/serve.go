package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bioexplorer/internal/config"
	"bioexplorer/internal/embedding"
	"bioexplorer/internal/llmservice"
	"bioexplorer/internal/metrics"
	"bioexplorer/internal/rag"
	"bioexplorer/internal/server"
)

func serveCMD(opts *rootOptions) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.ScopeServe)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			emb, err := embedding.NewEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			index, closeIndex, err := openSearchIndex(ctx, cfg, emb)
			if err != nil {
				return err
			}
			defer closeIndex()

			llm, err := llmservice.NewClient(&cfg.LLM)
			if err != nil {
				return err
			}

			m := metrics.New()
			pipeline := rag.NewRAG(index, emb, llm, rag.WithMetrics(m))
			return server.New(pipeline, cfg.Server, m).Start(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return serve
}
