// Package embeddingstest provides a deterministic embedder for tests.
package embeddingstest

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/nickcecere/docrag/internal/embeddings"
)

// Service embeds text as a hashed bag of words. Texts sharing words have
// high cosine similarity; identical texts have identical vectors.
type Service struct {
	Dims int

	// Err, when set, is returned by every call.
	Err error

	calls atomic.Int64
}

// New returns a Service with the given number of dimensions.
func New(dims int) *Service {
	return &Service{Dims: dims}
}

// Vector returns the embedding of text.
func (s *Service) Vector(text string) []float32 {
	v := make([]float32, s.Dims)
	// Bias keeps empty texts away from the zero vector
	v[0] = 0.01
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		v[1+xxhash.Sum64String(word)%uint64(s.Dims-1)]++
	}
	return v
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.EmbedQuery(ctx, text)
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Vector(text), nil
}

func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.Vector(t)
	}
	return out, nil
}

// Calls returns how many embedding requests were made.
func (s *Service) Calls() int {
	return int(s.calls.Load())
}

func (s *Service) Dimensions() int { return s.Dims }
func (s *Service) Provider() embeddings.Provider { return "test" }
func (s *Service) ModelName() string { return "bag-of-words" }
