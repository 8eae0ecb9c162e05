package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/models"
)

type documentRemover interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	Remove(ctx context.Context, doc *models.Document) error
}

var removeCmd = &cobra.Command{
	Use:   "remove [doc-id]",
	Short: "Delete a document with its chunks and stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := removeDocument(cmd.Context(), a.Documents, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, doc)
	},
}

func removeDocument(ctx context.Context, docs documentRemover, id string) (*models.Document, error) {
	doc, err := docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err := docs.Remove(ctx, doc); err != nil {
		return nil, fmt.Errorf("remove document %s: %w", id, err)
	}
	return doc, nil
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
