package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	flagDLOutputDir     string
	flagDLOverwrite     bool
	flagDLDryRun        bool
	flagDLEmail         string
	flagDLInput         string
	flagDLPMCOnly       bool
	flagDLUnpaywallOnly bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download full-text PDFs from PMC and Unpaywall",
	Long: `Download open-access PDFs for articles on stdin (JSONL from pm parse) or
for bare PMIDs (stdin lines or --input FILE; these are resolved to PMCID
and DOI first). PMC is tried before Unpaywall; files land in --output-dir
as <pmid>.pdf and each attempt is recorded in the cache and audit trail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		var lines []string
		if flagDLInput != "" {
			data, err := os.ReadFile(flagDLInput)
			if err != nil {
				return err
			}
			lines = splitLines(bytes.NewReader(data))
		} else {
			lines = splitLines(cmd.InOrStdin())
		}
		if len(lines) == 0 {
			return fmt.Errorf("no input: pipe JSONL articles or PMIDs, or use --input")
		}

		email := flagDLEmail
		if email == "" {
			email = e.cfg.ResolvedEmail()
		}
		opts := &pubmed.DownloadOptions{
			OutputDir:     flagDLOutputDir,
			Overwrite:     flagDLOverwrite,
			Email:         email,
			PMCOnly:       flagDLPMCOnly,
			UnpaywallOnly: flagDLUnpaywallOnly,
			HTTPClient:    e.client,
			Log:           e.log,
		}

		articles, err := downloadInput(cmd, lines, opts)
		if err != nil {
			return err
		}

		sources := pubmed.FindPDFSources(cmd.Context(), articles, opts)

		if flagDLDryRun {
			available := 0
			for _, src := range sources {
				if src.URL != "" {
					available++
					cmd.Printf("PMID %s: PDF available via %s\n", src.PMID, src.Source)
				} else {
					cmd.Printf("PMID %s: No source available\n", src.PMID)
				}
			}
			cmd.Printf("\nSummary: %d available, %d not available\n", available, len(sources)-available)
			return nil
		}

		result, err := pubmed.DownloadPDFs(cmd.Context(), e.store, sources, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Downloaded: %d, Skipped: %d, Failed: %d\n",
			result.Downloaded, result.Skipped, result.Failed)
		if result.Downloaded == 0 && result.Skipped == 0 {
			return fmt.Errorf("no PDFs downloaded")
		}
		return nil
	},
}

// downloadInput builds the article list from either JSONL lines or bare
// PMIDs resolved through the ID converter.
func downloadInput(cmd *cobra.Command, lines []string, opts *pubmed.DownloadOptions) ([]pubmed.Article, error) {
	if strings.HasPrefix(lines[0], "{") {
		return pubmed.ReadArticles(strings.NewReader(strings.Join(lines, "\n")))
	}
	records, err := pubmed.ConvertPMIDs(cmd.Context(), lines, opts)
	if err != nil {
		return nil, err
	}
	byPMID := make(map[string]pubmed.IDRecord, len(records))
	for _, rec := range records {
		byPMID[rec.PMID] = rec
	}
	articles := make([]pubmed.Article, 0, len(lines))
	for _, pmid := range lines {
		rec := byPMID[pmid]
		articles = append(articles, pubmed.Article{PMID: pmid, PMCID: rec.PMCID, DOI: rec.DOI})
	}
	return articles, nil
}

func splitLines(r io.Reader) []string {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&flagDLOutputDir, "output-dir", ".", "directory for downloaded PDFs")
	f.BoolVar(&flagDLOverwrite, "overwrite", false, "overwrite existing files")
	f.BoolVar(&flagDLDryRun, "dry-run", false, "report availability without downloading")
	f.StringVar(&flagDLEmail, "email", "", "email for Unpaywall and the ID converter")
	f.StringVar(&flagDLInput, "input", "", "read PMIDs from file (one per line)")
	f.BoolVar(&flagDLPMCOnly, "pmc-only", false, "only use PMC")
	f.BoolVar(&flagDLUnpaywallOnly, "unpaywall-only", false, "only use Unpaywall")
}
