package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/docrag/internal/document"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// indexFileName is the database file inside a store directory.
const indexFileName = "index.db"

// maxKNN is the largest k sqlite-vec accepts in a kNN query.
const maxKNN = 4096

// Index is an open handle on one store's database. It is safe for
// concurrent reads.
type Index struct {
	db   *sql.DB
	path string
	meta Meta
}

// candidate is a nearest neighbour together with its stored embedding.
type candidate struct {
	Result
	embedding []float32
}

func dsn(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// createIndex creates a new database at path and writes its schema.
func createIndex(ctx context.Context, path string, meta Meta) (*Index, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(ctx, db, meta); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Created store database", "path", path)
	return &Index{db: db, path: path, meta: meta}, nil
}

// openIndex opens an existing database. It never creates one.
func openIndex(ctx context.Context, path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ix := &Index{db: db, path: path}
	if err := checkSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := ix.loadMeta(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Opened store database", "path", path)
	return ix, nil
}

// Meta returns how the store was built.
func (ix *Index) Meta() Meta {
	return ix.meta
}

// Path returns the database file path.
func (ix *Index) Path() string {
	return ix.path
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) loadMeta(ctx context.Context) error {
	var metric, createdAt, updatedAt string
	err := ix.db.QueryRowContext(ctx, `
		SELECT name, metric, embedding_provider, embedding_model, embedding_dimensions, created_at, updated_at
		FROM store_meta WHERE id = 1
	`).Scan(&ix.meta.Name, &metric, &ix.meta.EmbeddingProvider, &ix.meta.EmbeddingModel,
		&ix.meta.EmbeddingDimensions, &createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("failed to read store meta: %w", err)
	}

	ix.meta.Metric = Metric(metric)
	ix.meta.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ix.meta.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return nil
}

// Insert appends chunks and their embeddings in a single transaction.
func (ix *Index) Insert(ctx context.Context, chunks []document.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and embeddings count mismatch: %d != %d", len(chunks), len(vectors))
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (content, metadata, source) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert: %w", err)
	}
	defer vecStmt.Close()

	for i, chunk := range chunks {
		if len(vectors[i]) != ix.meta.EmbeddingDimensions {
			return fmt.Errorf("embedding %d has %d dimensions, store expects %d", i, len(vectors[i]), ix.meta.EmbeddingDimensions)
		}

		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %d: %w", i, err)
		}

		result, err := chunkStmt.ExecContext(ctx, chunk.Content, string(metadata), chunk.Metadata.Source)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		chunkID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get chunk ID: %w", err)
		}

		if _, err := vecStmt.ExecContext(ctx, chunkID, serializeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert vector for chunk %d: %w", i, err)
		}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "UPDATE store_meta SET updated_at = ? WHERE id = 1", formatTime(now)); err != nil {
		return fmt.Errorf("failed to update store meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	ix.meta.UpdatedAt = now.Truncate(time.Second)
	return nil
}

// Search returns the k chunks nearest to query, closest first.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	cands, err := ix.nearest(ctx, query, k, false)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(cands))
	for i, c := range cands {
		results[i] = c.Result
	}
	return results, nil
}

// nearest runs the kNN query. With withEmbeddings set the stored vectors are
// returned too.
func (ix *Index) nearest(ctx context.Context, query []float32, k int, withEmbeddings bool) ([]candidate, error) {
	if len(query) != ix.meta.EmbeddingDimensions {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d", len(query), ix.meta.EmbeddingDimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	if k > maxKNN {
		k = maxKNN
	}

	embeddingCol := "NULL"
	if withEmbeddings {
		embeddingCol = "embedding"
	}

	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(`
		WITH knn AS (
			SELECT chunk_id, distance, %s AS embedding
			FROM chunk_vectors
			WHERE embedding MATCH ? AND k = ?
		)
		SELECT c.content, c.metadata, knn.distance, knn.embedding
		FROM knn
		JOIN chunks c ON c.id = knn.chunk_id
		ORDER BY knn.distance ASC, c.id ASC
	`, embeddingCol), serializeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var metadata string
		var blob []byte
		if err := rows.Scan(&c.Content, &metadata, &c.Distance, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
		c.Score = ix.similarity(c.Distance)
		if withEmbeddings {
			c.embedding = deserializeEmbedding(blob)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// similarity converts a distance into cosine similarity. L2 stores hold unit
// vectors, for which cos = 1 - d²/2.
func (ix *Index) similarity(distance float64) float64 {
	if ix.meta.Metric == MetricL2 {
		return 1 - distance*distance/2
	}
	return 1 - distance
}

// Count returns the number of chunks in the store.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding is the inverse of serializeEmbedding.
func deserializeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// isNotExist reports whether err means the store's files are absent.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
