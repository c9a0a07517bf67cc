package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quixotic-maker/jarvis-sub000/internal/app"
	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
	"github.com/quixotic-maker/jarvis-sub000/internal/retrieval"
)

var (
	searchKB        string
	searchMode      string
	searchK         int
	searchThreshold float32
	searchContext   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query a knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchKB, "kb", "default", "knowledge base name")
	searchCmd.Flags().StringVar(&searchMode, "mode", "semantic", "retrieval mode: semantic|keyword|hybrid|rerank")
	searchCmd.Flags().IntVarP(&searchK, "top", "k", 5, "number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum score")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print assembled context instead of a result list")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, query string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	base, err := a.Registry.GetOrCreate(ctx, searchKB, kb.Config{})
	if err != nil {
		return err
	}

	if searchContext {
		text, err := base.Context(ctx, query, searchK, 0)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	mode, err := retrieval.ParseMode(searchMode)
	if err != nil {
		return err
	}
	results, err := base.Search(ctx, query, mode, retrieval.Options{
		K:         searchK,
		Threshold: searchThreshold,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, r := range results {
		source := r.Document.Metadata["source"]
		fmt.Printf("%2d. [%.3f] %s\n", r.Rank, r.Score, source)
		fmt.Printf("    %s\n", firstLine(r.Document.Content, 120))
	}
	return nil
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}
