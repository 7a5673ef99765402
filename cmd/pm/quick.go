package main

import (
	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var flagQuickMax int

var quickCmd = &cobra.Command{
	Use:   "quick \"query\"",
	Short: "Search, fetch, and parse in one command",
	Long: `Run the search | fetch | parse pipeline in one step and print article
records as JSONL. Equivalent to:

  pm search "query" | pm fetch | pm parse`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		pmids, err := pubmed.Search(cmd.Context(), e.store, args[0], &pubmed.SearchOptions{
			Max:        flagQuickMax,
			HTTPClient: e.client,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		e.log.Info("search complete", "query", args[0], "pmids", len(pmids))
		if len(pmids) == 0 {
			return nil
		}
		doc, err := pubmed.FetchArticles(cmd.Context(), e.store, pmids, &pubmed.FetchOptions{
			BatchSize:  e.cfg.BatchSize,
			RateDelay:  e.cfg.RateDelayDuration(),
			HTTPClient: e.client,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		articles := pubmed.ParseArticles(doc)
		return pubmed.WriteArticles(cmd.OutOrStdout(), articles)
	},
}

func init() {
	quickCmd.Flags().IntVar(&flagQuickMax, "max", 100, "maximum search results")
}
