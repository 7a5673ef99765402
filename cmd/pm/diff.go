package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagDiffQuiet  bool
	flagDiffIgnore []string
)

var diffCmd = &cobra.Command{
	Use:   "diff OLD_FILE NEW_FILE",
	Short: "Compare two JSONL article files by PMID",
	Long: `Compare two JSONL files by PMID and emit one difference per line, grouped
removed, then changed, then added. Either file may be "-" for stdin, but
not both. Exits 0 when identical and 1 when differences were found.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldFile, newFile := args[0], args[1]
		if oldFile == "-" && newFile == "-" {
			return fmt.Errorf("cannot use stdin for both files")
		}
		oldArticles, err := loadDiffFile(cmd, oldFile)
		if err != nil {
			return err
		}
		newArticles, err := loadDiffFile(cmd, newFile)
		if err != nil {
			return err
		}

		diffs := pubmed.DiffArticles(oldArticles, newArticles, flagDiffIgnore)
		if !flagDiffQuiet {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, d := range diffs {
				if err := enc.Encode(d); err != nil {
					return err
				}
			}
		}
		if len(diffs) > 0 {
			// Differences are signalled by exit code, not an error message.
			rootCmd.SilenceErrors = true
			os.Exit(1)
		}
		return nil
	},
}

func loadDiffFile(cmd *cobra.Command, path string) ([]map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return pubmed.LoadArticleMaps(r)
}

func init() {
	diffCmd.Flags().BoolVarP(&flagDiffQuiet, "quiet", "q", false, "suppress output, just set the exit code")
	diffCmd.Flags().StringSliceVar(&flagDiffIgnore, "ignore", nil, "fields to ignore when comparing")
}
