package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/app"
	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/logger"
)

var (
	cfg  *config.Config
	zlog zerolog.Logger

	// newApp is replaced in tests.
	newApp = func(ctx context.Context) (*app.App, error) {
		return app.NewApp(ctx, cfg, zlog)
	}
)

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "Document ingestion and retrieval pipeline",
	Long: `ingestd downloads registered documents from object storage, extracts their
text (with OCR for scans and images), chunks and embeds it, and stores the
vectors in Postgres for similarity search.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if cfg == nil {
			cfg = config.LoadConfig()
		}
		zlog = logger.New(logger.Config{
			Level:  cfg.LogLevel,
			Pretty: cfg.LogPretty,
			Output: cmd.ErrOrStderr(),
		})
	},
}

// errRunFailed signals a completed batch whose summary reports ok=false.
var errRunFailed = errors.New("batch run failed")

func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errRunFailed) {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
