package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bioexplorer/internal/config"
	"bioexplorer/internal/embedding"
)

func exportCMD(opts *rootOptions) *cobra.Command {
	var file string
	var importMode bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the chromem collection to a single snapshot file, or import one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.ScopeIngest)
			if err != nil {
				return err
			}
			if cfg.RAG.Backend != config.BackendChromem {
				return fmt.Errorf("export is only supported for the %s backend", config.BackendChromem)
			}

			emb, err := embedding.NewEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			m, err := openChromemWriter(cfg, emb)
			if err != nil {
				return err
			}
			if file == "" {
				file = m.SnapshotPath()
			}

			if importMode {
				if err := m.Import(cmd.Context(), file); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks from %s\n", m.Count(), file)
				return nil
			}
			if err := m.Export(cmd.Context(), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chunks to %s\n", m.Count(), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file (default inside the vector directory)")
	cmd.Flags().BoolVar(&importMode, "import", false, "import the snapshot instead of exporting")
	return cmd
}
