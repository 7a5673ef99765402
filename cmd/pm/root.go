package main

import (
	"bufio"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "PubMed research pipeline with a crash-safe local cache",
	Long: `pm is a set of composable commands for searching PubMed, fetching and
parsing article records, screening them, and exporting citations. Results
are cached under a .pm/ directory and every operation is recorded in an
append-only audit trail for PRISMA-style reporting.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(citeCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(quickCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("pm %s (commit: %s)\n", version, commit)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env holds the shared dependencies resolved once per invocation.
type env struct {
	store  *pubmed.Store
	cfg    *pubmed.Config
	log    *slog.Logger
	client *http.Client
}

// setup discovers the project store, loads config, and builds the logger.
// A missing .pm/ is not an error: the store is nil and commands run
// uncached and unaudited.
func setup() (*env, error) {
	store := discoverStore()
	cfg, err := pubmed.LoadConfig(flagConfig, store)
	if err != nil {
		return nil, err
	}
	log := pubmed.NewLogger(os.Stderr, cfg.LogFormat, flagVerbose)
	store.SetLogger(log)
	return &env{
		store:  store,
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: cfg.TimeoutDuration()},
	}, nil
}

// discoverStore finds the nearest .pm/ directory, starting at PM_DIR if set
// and otherwise walking up from the working directory.
func discoverStore() *pubmed.Store {
	if dir := os.Getenv("PM_DIR"); dir != "" {
		return pubmed.Discover(dir)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	for {
		if s := pubmed.Discover(dir); s != nil {
			return s
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// readPMIDs returns args when present, otherwise non-blank stdin lines.
func readPMIDs(args []string, stdin io.Reader) []string {
	if len(args) > 0 {
		return args
	}
	var pmids []string
	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			pmids = append(pmids, line)
		}
	}
	return pmids
}
