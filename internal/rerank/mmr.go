// Package rerank orders retrieval candidates by cross-encoder relevance
// balanced against redundancy (maximal marginal relevance) and recency.
package rerank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/recency"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
)

// ErrNoText marks candidates that carry no rerankable text. That is a
// hydration bug upstream, not a degradation case, so it fails the rerank.
var ErrNoText = errors.New("rerank: candidate has no text")

// Options tunes the MMR objective.
type Options struct {
	// AlphaMMR weighs relevance; 1-AlphaMMR weighs redundancy penalty.
	AlphaMMR float64
	// BetaRecency weighs the additive recency bonus.
	BetaRecency float64
	// TopK bounds the number of selected chunks.
	TopK int
}

// Reranker scores candidates with a cross-encoder and selects a diverse,
// recency-boosted subset.
type Reranker struct {
	ce     embedding.CrossEncoder
	logger *slog.Logger
}

// New creates a Reranker.
func New(ce embedding.CrossEncoder, logger *slog.Logger) *Reranker {
	return &Reranker{ce: ce, logger: logger}
}

// Rerank selects up to opts.TopK candidates for query. Candidates without
// a usable embedding are dropped with a warning; candidates without text
// fail the call. The input slice is never mutated. Selection order is the
// output order, and all internal scores are stripped from the result.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []model.Candidate, now time.Time, opts Options) ([]model.FinalChunk, error) {
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", model.ErrValidation)
	}
	if opts.AlphaMMR < 0 || opts.AlphaMMR > 1 {
		return nil, fmt.Errorf("%w: alpha must be in [0,1]", model.ErrValidation)
	}
	if len(candidates) == 0 {
		return []model.FinalChunk{}, nil
	}

	// Work on a copy; callers keep their candidates (and embeddings) intact.
	pool := make([]model.Candidate, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		text, ok := c.Text()
		if !ok {
			return nil, fmt.Errorf("%w: id %s", ErrNoText, c.ID)
		}
		if len(c.Embedding.Slice()) == 0 {
			r.logger.Warn("dropping candidate without embedding", "id", c.ID, "bucket", c.Bucket)
			continue
		}
		pool = append(pool, c)
		texts = append(texts, text)
	}
	if len(pool) == 0 {
		return []model.FinalChunk{}, nil
	}

	ceScores, err := r.ce.Scores(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: cross-encoder: %w", err)
	}
	if len(ceScores) != len(pool) {
		return nil, fmt.Errorf("rerank: got %d scores for %d candidates", len(ceScores), len(pool))
	}
	normalizeMinMax(ceScores)

	for i := range pool {
		pool[i].CEScore = ceScores[i]
		if ts, ok := pool[i].Timestamp(); ok {
			pool[i].RecencyScore = recency.ScoreTime(ts, now)
		}
	}

	sim := cosineMatrix(pool)
	order := selectMMR(pool, sim, opts)

	out := make([]model.FinalChunk, 0, len(order))
	for _, idx := range order {
		out = append(out, pool[idx].FinalChunk())
	}
	return out, nil
}

// selectMMR greedily picks candidates maximizing
// alpha*ce - (1-alpha)*maxSimToSelected + beta*recency.
// Ties break toward the lowest id so the ranking is deterministic.
func selectMMR(pool []model.Candidate, sim [][]float64, opts Options) []int {
	n := len(pool)
	k := min(opts.TopK, n)
	selected := make([]int, 0, k)
	remaining := make(map[int]bool, n)
	for i := range n {
		remaining[i] = true
	}

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range n {
			if !remaining[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selected {
				if sim[i][j] > maxSim {
					maxSim = sim[i][j]
				}
			}
			score := opts.AlphaMMR*pool[i].CEScore - (1-opts.AlphaMMR)*maxSim + opts.BetaRecency*pool[i].RecencyScore
			switch {
			case score > bestScore:
				best, bestScore = i, score
			case score == bestScore && best >= 0 && bytes.Compare(pool[i].ID[:], pool[best].ID[:]) < 0:
				best = i
			}
		}
		pool[best].MMRScore = bestScore
		selected = append(selected, best)
		delete(remaining, best)
	}
	return selected
}

// normalizeMinMax rescales scores into [0,1] in place. When all scores are
// equal there is no signal to spread, so everything maps to 1.
func normalizeMinMax(scores []float64) {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi == lo {
		for i := range scores {
			scores[i] = 1
		}
		return
	}
	for i := range scores {
		scores[i] = (scores[i] - lo) / (hi - lo)
	}
}

// cosineMatrix computes pairwise cosine similarity between candidate
// embeddings. Zero vectors similarity is zero.
func cosineMatrix(pool []model.Candidate) [][]float64 {
	n := len(pool)
	vecs := make([][]float32, n)
	norms := make([]float64, n)
	for i, c := range pool {
		vecs[i] = c.Embedding.Slice()
		var sum float64
		for _, v := range vecs[i] {
			sum += float64(v) * float64(v)
		}
		norms[i] = math.Sqrt(sum)
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := range n {
		sim[i][i] = 1
		for j := i + 1; j < n; j++ {
			var dot float64
			for d := range vecs[i] {
				if d >= len(vecs[j]) {
					break
				}
				dot += float64(vecs[i][d]) * float64(vecs[j][d])
			}
			v := 0.0
			if norms[i] > 0 && norms[j] > 0 {
				v = dot / (norms[i] * norms[j])
			}
			sim[i][j] = v
			sim[j][i] = v
		}
	}
	return sim
}
