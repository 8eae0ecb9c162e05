package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var serveWorkers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue workers and the ops HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		workers := serveWorkers
		if workers <= 0 {
			workers = a.Config.Ingest.DocumentConcurrency
		}
		a.Ingestor.Start(ctx, workers)

		srv := a.NewServer()
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(ctx) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "queue workers (0 = DOCUMENT_CONCURRENCY)")
	rootCmd.AddCommand(serveCmd)
}
