package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var flagIndexLimit int

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Local article index over the fetch cache",
	Long: `Maintain a SQLite index over parsed article records for offline lookups.
The index lives at .pm/index.db and can always be rebuilt from the cache.`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the index from cached article fragments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireStore()
		if err != nil {
			return err
		}
		ix, err := pubmed.OpenIndex(e.store.IndexPath())
		if err != nil {
			return err
		}
		defer ix.Close()
		n, err := pubmed.BuildIndex(cmd.Context(), e.store, ix)
		if err != nil {
			return err
		}
		cmd.Printf("Indexed %d article(s).\n", n)
		return nil
	},
}

var indexQueryCmd = &cobra.Command{
	Use:   "query TERM",
	Short: "Search indexed articles by title or journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireStore()
		if err != nil {
			return err
		}
		ix, err := pubmed.OpenIndex(e.store.IndexPath())
		if err != nil {
			return err
		}
		defer ix.Close()
		articles, err := ix.Query(cmd.Context(), args[0], flagIndexLimit)
		if err != nil {
			return err
		}
		return pubmed.WriteArticles(cmd.OutOrStdout(), articles)
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireStore()
		if err != nil {
			return err
		}
		ix, err := pubmed.OpenIndex(e.store.IndexPath())
		if err != nil {
			return err
		}
		defer ix.Close()
		stats, err := ix.Stats(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Articles: %d\n", stats.Articles)
		cmd.Printf("Journals: %d\n", stats.Journals)
		if stats.MinYear > 0 {
			cmd.Printf("Years: %d-%d\n", stats.MinYear, stats.MaxYear)
		}
		return nil
	},
}

func requireStore() (*env, error) {
	e, err := setup()
	if err != nil {
		return nil, err
	}
	if e.store == nil {
		return nil, fmt.Errorf("no .pm/ directory found; run 'pm init' first")
	}
	return e, nil
}

func init() {
	indexQueryCmd.Flags().IntVar(&flagIndexLimit, "limit", 0, "maximum results (0 = all)")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)
	indexCmd.AddCommand(indexStatsCmd)
}
