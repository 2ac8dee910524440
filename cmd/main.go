package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bioexplorer/internal/config"
	"bioexplorer/internal/helper"
)

const configFilePath = "./configs/config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			for _, p := range cfgErr.Problems {
				log.Error().Str("field", p.Field).Msg(p.Message)
			}
		}
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "bioexplorer",
		Short:         "Question answering over space biology publications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", configFilePath, "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", true, "human readable console logs")

	root.AddCommand(
		serveCMD(opts),
		ingestCMD(opts),
		queryCMD(opts),
		fetchCMD(opts),
		exportCMD(opts),
	)
	return root
}

// load reads and validates the config for scope and sets up logging.
func (o *rootOptions) load(scope config.Scope) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	helper.SetupLogger(cfg.Log.Level, o.pretty || cfg.Log.Pretty)
	log.Debug().Str("config", o.configPath).Msg("Loaded config")

	if err := cfg.Validate(scope); err != nil {
		return nil, err
	}
	return cfg, nil
}
