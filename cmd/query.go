package main

import (
	"strings"

	"github.com/spf13/cobra"

	"bioexplorer/internal/config"
	"bioexplorer/internal/embedding"
	"bioexplorer/internal/helper"
	"bioexplorer/internal/llmservice"
	"bioexplorer/internal/prompt"
	"bioexplorer/internal/rag"
)

func queryCMD(opts *rootOptions) *cobra.Command {
	var role string
	query := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer one question and print the response with its sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.ScopeServe)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

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

			resp, err := rag.NewRAG(index, emb, llm).Answer(ctx, strings.Join(args, " "), role)
			if err != nil {
				return err
			}
			helper.PrettyPrintTo(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	names := make([]string, 0, len(prompt.Roles()))
	for _, r := range prompt.Roles() {
		names = append(names, r.String())
	}
	query.Flags().StringVarP(&role, "role", "r", "", "audience, one of "+strings.Join(names, ", "))
	return query
}
