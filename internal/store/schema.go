package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

// store_meta holds exactly one row describing the store.
const storeMetaTable = `
CREATE TABLE IF NOT EXISTS store_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	name TEXT NOT NULL,
	metric TEXT NOT NULL,
	embedding_provider TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding_dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	source TEXT NOT NULL DEFAULT '',
	added_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// createVectorTable creates the sqlite-vec virtual table. The dimensions and
// metric are fixed for the life of the store.
func createVectorTable(ctx context.Context, tx *sql.Tx, dimensions int, metric Metric) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=%s
		);
	`, dimensions, metric)

	_, err := tx.ExecContext(ctx, query)
	return err
}

// initSchema creates every table of a new store inside one transaction.
func initSchema(ctx context.Context, db *sql.DB, meta Meta) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	log.Debug("Creating store schema", "store", meta.Name, "version", currentSchemaVersion,
		"dimensions", meta.EmbeddingDimensions, "metric", meta.Metric)

	for _, stmt := range []string{schemaVersionTable, storeMetaTable, chunksTable} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if err := createVectorTable(ctx, tx, meta.EmbeddingDimensions, meta.Metric); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO store_meta (id, name, metric, embedding_provider, embedding_model, embedding_dimensions, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
	`, meta.Name, string(meta.Metric), meta.EmbeddingProvider, meta.EmbeddingModel, meta.EmbeddingDimensions,
		formatTime(meta.CreatedAt), formatTime(meta.UpdatedAt)); err != nil {
		return fmt.Errorf("failed to write store meta: %w", err)
	}

	return tx.Commit()
}

// checkSchema verifies an existing store was written by a compatible version.
func checkSchema(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, currentSchemaVersion)
	}
	return nil
}
