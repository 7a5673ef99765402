package main

import (
	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var filterCriteria pubmed.Criteria

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter JSONL articles by field criteria",
	Long: `Filter a JSONL article stream on stdin. All given criteria combine with
AND; screening counts and a per-criterion exclusion breakdown are recorded
in the audit trail when a .pm/ directory is present.

Year accepts an exact year or a range: 2024, 2020-2024, 2020-, -2024.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if err := filterCriteria.Validate(); err != nil {
			return err
		}
		articles, err := pubmed.ReadArticles(cmd.InOrStdin())
		if err != nil {
			return err
		}
		kept, err := pubmed.FilterArticlesAudited(articles, filterCriteria, e.store.Audit())
		if err != nil {
			return err
		}
		if err := pubmed.WriteArticles(cmd.OutOrStdout(), kept); err != nil {
			return err
		}
		e.log.Info("filtered", "input", len(articles), "output", len(kept))
		return nil
	},
}

func init() {
	f := filterCmd.Flags()
	f.StringVar(&filterCriteria.PMID, "pmid", "", "keep only these PMIDs (comma-separated)")
	f.StringVar(&filterCriteria.Year, "year", "", "year or year range")
	f.StringVar(&filterCriteria.Journal, "journal", "", "journal contains (case-insensitive)")
	f.StringVar(&filterCriteria.JournalExact, "journal-exact", "", "journal equals exactly")
	f.StringVar(&filterCriteria.Author, "author", "", "any author contains (case-insensitive)")
	f.StringVar(&filterCriteria.Title, "title", "", "title contains (case-insensitive)")
	f.IntVar(&filterCriteria.MinAuthors, "min-authors", 0, "minimum number of authors")
	f.BoolVar(&filterCriteria.HasAbstract, "has-abstract", false, "require a non-empty abstract")
	f.BoolVar(&filterCriteria.HasDOI, "has-doi", false, "require a DOI")
}
