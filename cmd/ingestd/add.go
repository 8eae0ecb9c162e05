package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/services"
)

var addTags services.Tags

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Upload a file and register it for indexing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Documents.Register(cmd.Context(), filepath.Base(args[0]), data, addTags)
		if err != nil {
			return err
		}
		return printJSON(cmd, doc)
	},
}

func init() {
	f := addCmd.Flags()
	f.StringVar(&addTags.Department, "department", "", "department tag")
	f.StringVar(&addTags.Category, "category", "", "category tag")
	f.StringVar(&addTags.Subject, "subject", "", "subject tag")
	f.StringVar(&addTags.Version, "version", "", "document version tag")
	rootCmd.AddCommand(addCmd)
}
