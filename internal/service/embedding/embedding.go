// Package embedding provides text embedding and cross-encoder providers.
//
// The production implementation talks to a TEI-style inference server
// (text-embeddings-inference: POST /embed, POST /rerank). A noop provider
// and a static cross-encoder support tests and degraded startup.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// ErrUnavailable marks embedding backend failures. Retrieval treats it as
// fatal for the dense path; insertion retries embedding on its own.
var ErrUnavailable = errors.New("embedding: backend unavailable")

// Provider generates text embeddings. Implementations reject empty or
// whitespace-only texts and return unit-L2-norm vectors; the dense search
// path and the reranker's cosine matrix rely on both.
type Provider interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	// Dimensions returns the vector dimension this provider produces.
	Dimensions() int
}

// CrossEncoder scores query/text pairs for relevance.
type CrossEncoder interface {
	// Scores returns one raw relevance score per text, in input order.
	Scores(ctx context.Context, query string, texts []string) ([]float64, error)
}

// NoopProvider returns zero vectors. Used in tests and when no embedding
// backend is configured; dense retrieval degrades to no-ops.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a noop provider emitting dims-sized zero vectors.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Embed returns a zero vector.
func (p *NoopProvider) Embed(_ context.Context, _ string) (pgvector.Vector, error) {
	return pgvector.NewVector(make([]float32, p.dims)), nil
}

// EmbedBatch returns zero vectors.
func (p *NoopProvider) EmbedBatch(_ context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i := range texts {
		out[i] = pgvector.NewVector(make([]float32, p.dims))
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// StaticCrossEncoder returns preconfigured scores, cycling when more texts
// than scores are requested. Test helper.
type StaticCrossEncoder struct {
	Values []float64
	Err    error
}

// Scores implements CrossEncoder.
func (s *StaticCrossEncoder) Scores(_ context.Context, _ string, texts []string) ([]float64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Values) == 0 {
		return nil, fmt.Errorf("embedding: static cross-encoder has no values")
	}
	out := make([]float64, len(texts))
	for i := range texts {
		out[i] = s.Values[i%len(s.Values)]
	}
	return out, nil
}
