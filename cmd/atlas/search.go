package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/config"
	"github.com/atlasgraph/atlas/pkg/logger"
	"github.com/atlasgraph/atlas/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid search query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var (
	searchMode       string
	searchMaxResults int
	searchDepth      int
	searchJSON       bool
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "Search mode (hybrid, vector_only, graph_only)")
	searchCmd.Flags().IntVar(&searchMaxResults, "max-results", 10, "Maximum number of results")
	searchCmd.Flags().IntVar(&searchDepth, "depth", 2, "Graph traversal depth, 1 to 3")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the full response as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Log.Level))
	engine, err := atlas.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	ctx := context.WithValue(context.Background(), types.ContextKeyRequestSource, "cli")
	resp, err := engine.Search(ctx, &types.SearchQuery{
		Text:       strings.Join(args, " "),
		Mode:       types.SearchMode(searchMode),
		MaxResults: searchMaxResults,
		GraphDepth: searchDepth,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Printf("(degraded: %s results only)\n", resp.Source)
	}
	for _, r := range resp.Results {
		fmt.Printf("%2d. %-40s %-10s %.3f\n", r.Rank, r.Entity.Name, r.Entity.EntityType, r.FinalScore)
	}
	if len(resp.Results) == 0 {
		fmt.Println("no results")
	}
	return nil
}
