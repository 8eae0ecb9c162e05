package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/models"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Embeds the query and ranks chunks by cosine similarity. When the
embedding provider or the vector query is unavailable it falls back to a
keyword match.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.Retriever.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
		if searchJSON {
			return printJSON(cmd, results)
		}
		printResults(cmd, results)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 = configured default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func printResults(cmd *cobra.Command, results []models.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		name, _ := r.Metadata["filename"].(string)
		if name == "" {
			name = r.DocumentID
		}
		if r.Similarity != nil {
			cmd.Printf("  [%d] %s #%d (%.2f)\n", i+1, name, r.ChunkIndex, *r.Similarity)
		} else {
			cmd.Printf("  [%d] %s #%d (%s)\n", i+1, name, r.ChunkIndex, r.Mode)
		}
		cmd.Printf("      %s\n", snippet(r.Content, 160))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
