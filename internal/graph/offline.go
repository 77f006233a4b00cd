package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/session"
)

// Offline runs the pre-classified flow: the router has already decided
// question vs statement and which buckets to search.
type Offline struct {
	sess   *session.Context
	cfg    Config
	logger *slog.Logger
}

// NewOffline creates the offline flow runner.
func NewOffline(sess *session.Context, cfg Config, logger *slog.Logger) *Offline {
	return &Offline{sess: sess, cfg: cfg, logger: logger}
}

// Run executes the offline flow for query. Questions only retrieve;
// statements retrieve and insert concurrently. A failed query embedding
// kills retrieval for this request but never the insertion: the statement
// is still written (the writer embeds independently).
func (g *Offline) Run(ctx context.Context, query string, qa model.QAType, topics []model.Bucket) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("%w: empty query", model.ErrValidation)
	}
	if qa != model.QAQuestion && qa != model.QAStatement {
		return Result{}, fmt.Errorf("%w: unknown qa type %q", model.ErrValidation, qa)
	}

	res := Result{UserQuery: query, FinalChunks: []model.FinalChunk{}}

	// Statements insert concurrently with retrieval.
	insertDone := make(chan bool, 1)
	if qa == model.QAStatement {
		go func() {
			insertDone <- insertStatement(ctx, g.sess, g.logger, query)
		}()
	} else {
		insertDone <- false
	}

	emb, err := g.sess.Embedder.Embed(ctx, query)
	if err != nil {
		g.logger.Error("query embedding failed, skipping retrieval", "error", err)
		res.Inserted = <-insertDone
		return res, nil
	}

	candidates := g.fanOut(ctx, dedupeTopics(topics), query, emb)
	res.FinalChunks = rerankCandidates(ctx, g.sess, g.cfg, g.logger, query, candidates)
	res.Inserted = <-insertDone
	return res, nil
}

// fanOut searches every topic bucket concurrently and appends the
// per-bucket results. Bucket failures already degraded to nil inside
// searchBucket, so the merge is a plain append.
func (g *Offline) fanOut(ctx context.Context, topics []model.Bucket, query string, emb pgvector.Vector) []model.Candidate {
	var (
		mu     sync.Mutex
		merged []model.Candidate
		wg     sync.WaitGroup
	)
	for _, topic := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found := searchBucket(ctx, g.sess, g.cfg, g.logger, topic, query, emb)
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return merged
}

// dedupeTopics drops repeated buckets while keeping first-seen order, and
// falls back to short-term when nothing valid remains.
func dedupeTopics(topics []model.Bucket) []model.Bucket {
	seen := make(map[model.Bucket]bool, len(topics))
	out := make([]model.Bucket, 0, len(topics))
	for _, t := range topics {
		if !t.Valid() || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		out = append(out, model.BucketShortTerm)
	}
	return out
}
