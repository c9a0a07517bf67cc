// Package cmd contains the jarvis CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quixotic-maker/jarvis-sub000/internal/config"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Jarvis - knowledge base ingestion and retrieval",
	Long: `Jarvis turns documents into searchable knowledge bases.

It chunks and embeds text files, stores the vectors in an embedded or
PostgreSQL-backed index, and answers queries with semantic, keyword,
hybrid or reranked retrieval. Run 'jarvis serve' for the HTTP API or use
'jarvis ingest' and 'jarvis search' directly from the shell.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfigAndLogger is shared bootstrap for every subcommand.
func loadConfigAndLogger() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	return cfg, logger, nil
}
