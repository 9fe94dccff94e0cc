package embeddings

import (
	"context"
	"math"
)

// NormalizedService scales every vector produced by the wrapped service to
// unit length.
type NormalizedService struct {
	Service
}

// Normalized wraps svc so it returns unit vectors. Wrapping twice is a no-op.
func Normalized(svc Service) Service {
	if _, ok := svc.(*NormalizedService); ok {
		return svc
	}
	return &NormalizedService{Service: svc}
}

// IsNormalized reports whether svc returns unit vectors.
func IsNormalized(svc Service) bool {
	_, ok := svc.(*NormalizedService)
	return ok
}

// Embed generates a unit-length embedding for chunk text.
func (s *NormalizedService) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.Service.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// EmbedQuery generates a unit-length embedding for a question.
func (s *NormalizedService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := s.Service.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// EmbedBatch generates unit-length embeddings for multiple texts.
func (s *NormalizedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := s.Service.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vs {
		vs[i] = Normalize(v)
	}
	return vs, nil
}

// Normalize returns v scaled to unit length. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
