package main

import (
	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagFetchBatchSize int
	flagFetchRefresh   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [PMID...]",
	Short: "Fetch article XML for PMIDs (args or stdin)",
	Long: `Fetch full article records as one PubmedArticleSet document on stdout.
PMIDs come from arguments or, when none are given, one per line on stdin.
Each article is cached individually, so overlapping requests only fetch
what is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		pmids := readPMIDs(args, cmd.InOrStdin())
		if len(pmids) == 0 {
			return nil
		}
		batchSize := flagFetchBatchSize
		if batchSize <= 0 {
			batchSize = e.cfg.BatchSize
		}
		doc, err := pubmed.FetchArticles(cmd.Context(), e.store, pmids, &pubmed.FetchOptions{
			BatchSize:  batchSize,
			RateDelay:  e.cfg.RateDelayDuration(),
			Refresh:    flagFetchRefresh,
			HTTPClient: e.client,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		if len(doc) > 0 {
			if _, err := cmd.OutOrStdout().Write(doc); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&flagFetchBatchSize, "batch-size", 0, "PMIDs per request (default from config)")
	fetchCmd.Flags().BoolVar(&flagFetchRefresh, "refresh", false, "bypass the cache and re-fetch")
}
