package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docindex/internal/app"
	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/models"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "process", "search", "add", "serve", "remove"} {
		assert.True(t, names[want], want)
	}
}

func TestRunFlags(t *testing.T) {
	for _, name := range []string{"force", "limit", "dry-run", "concurrency", "chunk-size", "chunk-overlap"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.NotNil(t, addCmd.Flags().Lookup("department"))
	assert.Equal(t, "n", searchCmd.Flags().Lookup("limit").Shorthand)
}

func TestRunReportsAppFailure(t *testing.T) {
	cfg = &config.Config{LogLevel: "error"}
	t.Cleanup(func() { cfg = nil })

	orig := newApp
	newApp = func(context.Context) (*app.App, error) { return nil, errors.New("ping db: connection refused") }
	t.Cleanup(func() { newApp = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"run", "--dry-run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, out.String(), "connection refused")
}

func TestPrintResults(t *testing.T) {
	sim := 0.91
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	printResults(cmd, []models.SearchResult{
		{DocumentID: "doc-1", ChunkIndex: 2, Content: "Pomp   onderhoud\nelk kwartaal", Metadata: map[string]any{"filename": "pompen.pdf"}, Similarity: &sim},
		{DocumentID: "doc-2", Content: "Onderhoudsschema", Mode: models.SearchModeKeyword},
	})
	assert.Contains(t, out.String(), "[1] pompen.pdf #2 (0.91)")
	assert.Contains(t, out.String(), "Pomp onderhoud elk kwartaal")
	assert.Contains(t, out.String(), "[2] doc-2 #0 (keyword)")

	out.Reset()
	printResults(cmd, nil)
	assert.Contains(t, out.String(), "No results found.")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "kort", snippet("kort", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

type fakeDocuments struct {
	docs      map[string]*models.Document
	getErr    error
	removeErr error
	removed   []string
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*models.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.docs[id], nil
}

func (f *fakeDocuments) Remove(_ context.Context, doc *models.Document) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, doc.ID)
	return nil
}

func TestRemoveDocument(t *testing.T) {
	ctx := context.Background()
	stored := &models.Document{ID: "doc-1", FileName: "pompen.pdf"}

	t.Run("removes existing document", func(t *testing.T) {
		f := &fakeDocuments{docs: map[string]*models.Document{"doc-1": stored}}
		doc, err := removeDocument(ctx, f, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, stored, doc)
		assert.Equal(t, []string{"doc-1"}, f.removed)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := &fakeDocuments{}
		_, err := removeDocument(ctx, f, "missing")
		assert.ErrorContains(t, err, "not found")
		assert.Empty(t, f.removed)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := &fakeDocuments{getErr: errors.New("connection refused")}
		_, err := removeDocument(ctx, f, "doc-1")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("remove failure", func(t *testing.T) {
		f := &fakeDocuments{docs: map[string]*models.Document{"doc-1": stored}, removeErr: errors.New("bucket gone")}
		_, err := removeDocument(ctx, f, "doc-1")
		assert.ErrorContains(t, err, "bucket gone")
	})
}
