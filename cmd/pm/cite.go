package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagCiteStyle   string
	flagCiteRefresh bool
)

var citeCmd = &cobra.Command{
	Use:   "cite [PMID...]",
	Short: "Fetch citations for PMIDs (args or stdin)",
	Long: `Fetch citation records from the NCBI Citation Exporter. The default
output is CSL-JSON, one record per line; --style apa or --style vancouver
renders formatted references instead. Citations are cached per PMID.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch flagCiteStyle {
		case "csl", "apa", "vancouver":
		default:
			return fmt.Errorf("unknown style %q (csl, apa, vancouver)", flagCiteStyle)
		}
		e, err := setup()
		if err != nil {
			return err
		}
		pmids := readPMIDs(args, cmd.InOrStdin())
		if len(pmids) == 0 {
			return nil
		}
		citations, err := pubmed.CiteArticles(cmd.Context(), e.store, pmids, &pubmed.CiteOptions{
			BatchSize:  e.cfg.BatchSize,
			RateDelay:  e.cfg.RateDelayDuration(),
			Refresh:    flagCiteRefresh,
			HTTPClient: e.client,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		for _, c := range citations {
			if flagCiteStyle == "csl" {
				cmd.Println(string(c))
				continue
			}
			formatted, err := pubmed.FormatCitation(c, flagCiteStyle)
			if err != nil {
				e.log.Warn("unformattable citation", "error", err)
				continue
			}
			cmd.Println(formatted)
		}
		return nil
	},
}

func init() {
	citeCmd.Flags().StringVar(&flagCiteStyle, "style", "csl", "output style: csl, apa, or vancouver")
	citeCmd.Flags().BoolVar(&flagCiteRefresh, "refresh", false, "bypass the cache and re-fetch")
}
