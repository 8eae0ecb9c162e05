package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const (
	schemaVersion  = 1
	embedDimMarker = "__EMBED_DIM__"
)

// EnsureBootstrapped creates the schema on first use. On an existing schema it
// refuses to start when the stored vector width differs from dims.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, dims int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docindex_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, dims)
	}

	var stored int
	err = db.QueryRowContext(ctxBoot,
		`SELECT embedding_dimensions FROM docindex_meta WHERE version = $1`, schemaVersion).
		Scan(&stored)
	if err == sql.ErrNoRows {
		return runBootstrap(ctxBoot, db, dims)
	}
	if err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if stored != dims {
		return fmt.Errorf("schema stores %d-dimensional embeddings, configured %d", stored, dims)
	}
	return nil
}

func bootstrapSQL(dims int) (string, error) {
	if dims <= 0 {
		return "", fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	return strings.ReplaceAll(string(sqlBytes), embedDimMarker, strconv.Itoa(dims)), nil
}

func runBootstrap(ctx context.Context, db *sql.DB, dims int) error {
	script, err := bootstrapSQL(dims)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
