// Package store manages named vector stores on disk. Each store is a
// directory holding one SQLite database with a sqlite-vec index.
package store

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/errs"
)

// Mode selects how a retriever ranks chunks.
type Mode string

const (
	// ModeSimilarity ranks by embedding distance.
	ModeSimilarity Mode = "similarity"

	// ModeMMR re-ranks the nearest candidates by Maximal Marginal Relevance.
	ModeMMR Mode = "mmr"
)

// ParseMode converts s to a Mode. The empty string means similarity.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSimilarity:
		return ModeSimilarity, nil
	case ModeMMR:
		return ModeMMR, nil
	default:
		return "", errs.Errorf(errs.KindValidation, "store.mode", s, "unknown search mode %q", s)
	}
}

// Metric is the sqlite-vec distance metric of a store.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// Meta describes how a store was built.
type Meta struct {
	Name                string    `json:"name"`
	Metric              Metric    `json:"metric"`
	EmbeddingProvider   string    `json:"embedding_provider"`
	EmbeddingModel      string    `json:"embedding_model"`
	EmbeddingDimensions int       `json:"embedding_dimensions"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Stats summarises a store's contents.
type Stats struct {
	Meta
	ChunkCount int   `json:"chunk_count"`
	SizeBytes  int64 `json:"size_bytes"`
}

// Result is a retrieved chunk with its similarity to the query.
type Result struct {
	document.Chunk
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"` // cosine similarity
}

// Chunks strips scores from results, keeping rank order.
func Chunks(results []Result) []document.Chunk {
	out := make([]document.Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}

const maxNameLength = 128

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks that name is usable as a store directory.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength || !validName.MatchString(name) {
		return errs.E(errs.KindValidation, "store.name", name,
			fmt.Errorf("store name must match %s and be at most %d characters", validName, maxNameLength))
	}
	return nil
}
