package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quixotic-maker/jarvis-sub000/internal/app"
	"github.com/quixotic-maker/jarvis-sub000/internal/chunk"
	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
)

var (
	ingestKB        string
	ingestRecursive bool
	ingestPatterns  []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest files or directories into a knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKB, "kb", "default", "knowledge base name")
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", true, "descend into subdirectories")
	ingestCmd.Flags().StringSliceVar(&ingestPatterns, "pattern", nil, "glob patterns to include (e.g. '**/*.md')")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, paths []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	strategy, err := chunk.ParseStrategy(cfg.ChunkStrategy)
	if err != nil {
		return err
	}
	base, err := a.Registry.GetOrCreate(ctx, ingestKB, kb.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Strategy:     strategy,
	})
	if err != nil {
		return err
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		if info.IsDir() {
			report, err := base.IngestDirectory(ctx, path, kb.DirectoryOptions{
				Recursive: ingestRecursive,
				Patterns:  ingestPatterns,
			})
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("%s: %d files ingested, %d failed, %d skipped, %d chunks (%.1f chunks/s)\n",
				path, report.FilesSucceeded, report.FilesFailed, report.FilesSkipped,
				report.ChunksWritten, report.ChunksPerSecond)
			continue
		}

		ids, err := base.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks\n", path, len(ids))
	}
	return nil
}
