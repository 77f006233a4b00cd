// Package search implements hybrid retrieval over the memory buckets:
// a dense cosine-kNN path and a lexical BM25 path run in parallel, and
// their scores fuse into a single ranking.
package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/kaigo-labs/omoide/internal/model"
)

// Store is the bucket-level query surface the index needs. *storage.DB
// satisfies it.
type Store interface {
	DenseSearch(ctx context.Context, bucket model.Bucket, elderlyID uuid.UUID, embedding pgvector.Vector, topK int, simThreshold *float64) ([]model.Candidate, error)
	LexicalSearch(ctx context.Context, bucket model.Bucket, elderlyID uuid.UUID, query string, fuzzyDistance, topK int) ([]model.Candidate, error)
}

// Params tunes one hybrid search.
type Params struct {
	TopK          int
	Alpha         float64  // BM25 weight; embeddings get 1-Alpha.
	SimThreshold  *float64 // Dense similarity cutoff; nil disables.
	FuzzyDistance int
}

// Index runs hybrid retrieval over one store.
type Index struct {
	store  Store
	logger *slog.Logger
}

// New creates an Index.
func New(store Store, logger *slog.Logger) *Index {
	return &Index{store: store, logger: logger}
}

// Search retrieves candidates from one bucket for (query, embedding),
// scoped to elderlyID. The dense and lexical paths run concurrently; their
// results are unioned by id, scored hybrid = alpha*bm25 + (1-alpha)*emb
// (BM25 max-normalized within this response), and truncated to TopK.
// Any store failure fails the whole bucket: the error is logged here and
// returned so the caller can treat the bucket as empty.
func (ix *Index) Search(ctx context.Context, bucket model.Bucket, elderlyID uuid.UUID, query string, embedding pgvector.Vector, p Params) ([]model.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrValidation)
	}
	if elderlyID == uuid.Nil {
		return nil, fmt.Errorf("%w: elderly_id is required", model.ErrValidation)
	}
	if p.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", model.ErrValidation)
	}
	if p.Alpha < 0 || p.Alpha > 1 {
		return nil, fmt.Errorf("%w: alpha must be in [0,1]", model.ErrValidation)
	}

	var dense, lexical []model.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = ix.store.DenseSearch(gctx, bucket, elderlyID, embedding, p.TopK, p.SimThreshold)
		if err != nil {
			return fmt.Errorf("search: dense path: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		lexical, err = ix.store.LexicalSearch(gctx, bucket, elderlyID, query, p.FuzzyDistance, p.TopK)
		if err != nil {
			return fmt.Errorf("search: lexical path: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		ix.logger.Error("bucket search failed", "bucket", bucket, "error", err)
		return nil, err
	}

	return fuse(dense, lexical, p.Alpha, p.TopK), nil
}

// fuse unions the two result sets by id and computes hybrid scores.
// When a row appears in both paths the dense hydration wins (identical
// payload, fresher similarity score).
func fuse(dense, lexical []model.Candidate, alpha float64, topK int) []model.Candidate {
	merged := make(map[uuid.UUID]model.Candidate, len(dense)+len(lexical))
	for _, c := range dense {
		merged[c.ID] = c
	}
	for _, c := range lexical {
		if existing, ok := merged[c.ID]; ok {
			existing.BM25Score = c.BM25Score
			merged[c.ID] = existing
			continue
		}
		merged[c.ID] = c
	}

	// Normalize raw BM25 scores by the response maximum so they land in
	// [0,1] alongside cosine similarities.
	var maxBM25 float64
	for _, c := range merged {
		if c.BM25Score > maxBM25 {
			maxBM25 = c.BM25Score
		}
	}

	out := make([]model.Candidate, 0, len(merged))
	for _, c := range merged {
		bm25 := 0.0
		if maxBM25 > 0 {
			bm25 = c.BM25Score / maxBM25
		}
		c.BM25Score = bm25
		c.HybridScore = round4(alpha*bm25 + (1-alpha)*c.EmbScore)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HybridScore != out[j].HybridScore {
			return out[i].HybridScore > out[j].HybridScore
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
