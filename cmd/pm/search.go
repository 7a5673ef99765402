package main

import (
	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagSearchMax     int
	flagSearchRefresh bool
)

var searchCmd = &cobra.Command{
	Use:   "search \"query\"",
	Short: "Search PubMed, printing one PMID per line",
	Long: `Search PubMed and print the matching PMIDs, one per line, for piping
into pm fetch or pm cite. Repeated identical queries answer from the cache;
use --refresh to force a new search.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		maxResults := flagSearchMax
		if maxResults <= 0 {
			maxResults = e.cfg.MaxResults
		}
		pmids, err := pubmed.Search(cmd.Context(), e.store, args[0], &pubmed.SearchOptions{
			Max:        maxResults,
			Refresh:    flagSearchRefresh,
			HTTPClient: e.client,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		for _, pmid := range pmids {
			cmd.Println(pmid)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagSearchMax, "max", 0, "maximum results (default from config)")
	searchCmd.Flags().BoolVar(&flagSearchRefresh, "refresh", false, "bypass the cache and re-run the search")
}
