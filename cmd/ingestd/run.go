package main

import (
	"github.com/spf13/cobra"

	ingest "github.com/markdave123-py/docindex/internal/core/ingestion_engine"
)

var runOpts ingest.RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every pending document once",
	Long: `Selects documents that are ready for indexing and not yet processed
(or all ready documents with --force), processes them concurrently and
prints the run summary as JSON. Exits non-zero when the run itself failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, runErr := a.Runner.Run(cmd.Context(), runOpts)
		if summary != nil {
			if err := printJSON(cmd, summary); err != nil {
				return err
			}
			if !summary.OK {
				return errRunFailed
			}
		}
		return runErr
	},
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runOpts.Force, "force", false, "reprocess documents that are already processed")
	f.IntVar(&runOpts.Limit, "limit", 0, "maximum number of documents (0 = no limit)")
	f.IntVar(&runOpts.Concurrency, "concurrency", 0, "documents processed in parallel (0 = configured default)")
	f.IntVar(&runOpts.ChunkSize, "chunk-size", 0, "override the configured chunk size")
	f.IntVar(&runOpts.ChunkOverlap, "chunk-overlap", 0, "override the configured chunk overlap")
	f.BoolVar(&runOpts.DryRun, "dry-run", false, "run every phase but write nothing")
	rootCmd.AddCommand(runCmd)
}
