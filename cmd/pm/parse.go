package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var parseCmd = &cobra.Command{
	Use:   "parse [FILE]",
	Short: "Extract article records from XML as JSONL",
	Long: `Parse a PubmedArticleSet document (stdin or FILE) into structured JSONL
records: pmid, title, authors, journal, year, date, abstract, doi, pmcid.
One article per output line, for piping into pm filter or pm diff.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		articles := pubmed.ParseArticles(data)
		return pubmed.WriteArticles(cmd.OutOrStdout(), articles)
	},
}
