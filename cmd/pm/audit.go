package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagAuditSearches   bool
	flagAuditDedup      bool
	flagAuditExclusions bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Summarize the audit trail",
	Long: `Report on the append-only audit trail. The default view counts events by
operation; --searches lists the search history, --dedup quantifies result
overlap between searches, and --exclusions sums screening exclusions by
criterion for PRISMA reporting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if e.store == nil {
			return fmt.Errorf("no .pm/ directory found; run 'pm init' first")
		}
		reporter := &pubmed.Reporter{Store: e.store}

		switch {
		case flagAuditSearches:
			return printSearches(cmd, reporter)
		case flagAuditDedup:
			return printDedup(cmd, reporter)
		case flagAuditExclusions:
			return printExclusions(cmd, reporter)
		default:
			return printSummary(cmd, reporter)
		}
	},
}

func printSummary(cmd *cobra.Command, r *pubmed.Reporter) error {
	summary, err := r.Summary()
	if err != nil {
		return err
	}
	cmd.Println("Audit Trail Summary")
	cmd.Println("===================")
	cmd.Println()
	if summary.TotalEvents == 0 {
		cmd.Println("No operations recorded.")
		return nil
	}
	cmd.Printf("Total operations: %d\n\n", summary.TotalEvents)
	ops := make([]string, 0, len(summary.ByOp))
	for op := range summary.ByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		cmd.Printf("  %-12s %5d\n", op, summary.ByOp[op])
	}
	if summary.TruncatedTail {
		cmd.Println("\nNote: final line truncated (crash mid-append); event not counted.")
	}
	if summary.Anomalies > 0 {
		cmd.Printf("\nWarning: %d malformed non-final line(s) in the trail.\n", summary.Anomalies)
	}
	return nil
}

func printSearches(cmd *cobra.Command, r *pubmed.Reporter) error {
	searches, err := r.Searches()
	if err != nil {
		return err
	}
	cmd.Println("Search History")
	cmd.Println("==============")
	cmd.Println()
	if len(searches) == 0 {
		cmd.Println("No searches recorded.")
		return nil
	}
	for _, s := range searches {
		date := s.TS
		if len(date) > 10 {
			date = date[:10]
		}
		marker := ""
		if s.Cached > 0 {
			marker = " (cached)"
		}
		cmd.Printf("  [%s] %q -> %d PMIDs%s\n", date, s.Query, s.Count, marker)
	}
	return nil
}

func printDedup(cmd *cobra.Command, r *pubmed.Reporter) error {
	report, err := r.Dedup()
	if err != nil {
		return err
	}
	cmd.Println("Search Deduplication")
	cmd.Println("====================")
	cmd.Println()
	if report.Searches == 0 {
		cmd.Println("No searches with retained key lists.")
		return nil
	}
	cmd.Printf("Searches: %d\n", report.Searches)
	cmd.Printf("Total keys: %d\n", report.TotalKeys)
	cmd.Printf("Unique keys: %d\n", report.UniqueKeys)
	if len(report.Overlaps) > 0 {
		cmd.Println("\nPairwise overlaps:")
		for _, o := range report.Overlaps {
			cmd.Printf("  %q / %q: %d\n", o.QueryA, o.QueryB, o.Overlap)
		}
	}
	return nil
}

func printExclusions(cmd *cobra.Command, r *pubmed.Reporter) error {
	report, err := r.Exclusions()
	if err != nil {
		return err
	}
	cmd.Println("Screening Exclusions")
	cmd.Println("====================")
	cmd.Println()
	if report.Filters == 0 {
		cmd.Println("No filter operations recorded.")
		return nil
	}
	cmd.Printf("Filter runs: %d\n", report.Filters)
	cmd.Printf("Input: %d, kept: %d, excluded: %d\n", report.Input, report.Output, report.Excluded)
	if len(report.ByCriterion) > 0 {
		cmd.Println("\nExcluded by criterion:")
		for _, name := range pubmed.CriterionNames(report.ByCriterion) {
			cmd.Printf("  %-14s %5d\n", name, report.ByCriterion[name])
		}
	}
	return nil
}

func init() {
	auditCmd.Flags().BoolVar(&flagAuditSearches, "searches", false, "list search history")
	auditCmd.Flags().BoolVar(&flagAuditDedup, "dedup", false, "report key overlap across searches")
	auditCmd.Flags().BoolVar(&flagAuditExclusions, "exclusions", false, "sum screening exclusions by criterion")
}
