// Package graph orchestrates the two conversation flows.
//
// The offline flow classifies text upfront (question/statement plus topic
// buckets) and fans retrieval out over the classified buckets. The online
// flow delegates those decisions to an LLM planner bound to memory tools.
// Both flows end in the same rerank step and produce the same Result.
package graph

import (
	"context"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/rerank"
	"github.com/kaigo-labs/omoide/internal/search"
	"github.com/kaigo-labs/omoide/internal/session"
)

// Config tunes retrieval and reranking for both flows.
type Config struct {
	Retrieval     search.Params
	Rerank        rerank.Options
	BucketTimeout time.Duration
}

// Result is the unified outcome of one flow run. FinalChunks is never nil.
type Result struct {
	UserQuery   string
	FinalChunks []model.FinalChunk
	Inserted    bool
}

// searchBucket queries one bucket with its own timeout. Failures degrade:
// they are logged and the bucket contributes nothing.
func searchBucket(ctx context.Context, sess *session.Context, cfg Config, logger *slog.Logger, bucket model.Bucket, query string, emb pgvector.Vector) []model.Candidate {
	bctx, cancel := context.WithTimeout(ctx, cfg.BucketTimeout)
	defer cancel()

	candidates, err := sess.Index.Search(bctx, bucket, sess.ElderlyID, query, emb, cfg.Retrieval)
	if err != nil {
		logger.Warn("bucket retrieval degraded", "bucket", bucket, "error", err)
		return nil
	}
	return candidates
}

// rerankCandidates runs the shared tail of both flows. A reranker failure
// means the retrieval path contributes nothing; the request still succeeds.
func rerankCandidates(ctx context.Context, sess *session.Context, cfg Config, logger *slog.Logger, query string, candidates []model.Candidate) []model.FinalChunk {
	if len(candidates) == 0 {
		return []model.FinalChunk{}
	}
	chunks, err := sess.Reranker.Rerank(ctx, query, candidates, time.Now(), cfg.Rerank)
	if err != nil {
		logger.Error("rerank failed, dropping retrieval results", "error", err, "candidates", len(candidates))
		return []model.FinalChunk{}
	}
	return chunks
}

// insertStatement writes content to short-term memory. The writer embeds
// on its own: a failed query embedding upstream must not lose the
// statement, so this retries embedding and falls back to storing the row
// without a vector.
func insertStatement(ctx context.Context, sess *session.Context, logger *slog.Logger, content string) bool {
	var emb *pgvector.Vector
	if v, err := sess.Embedder.Embed(ctx, content); err != nil {
		logger.Warn("insert embedding failed, storing without vector", "error", err)
	} else {
		emb = &v
	}

	id, _, err := sess.Writer.InsertShortTerm(ctx, sess.ElderlyID, content, emb)
	if err != nil {
		logger.Error("short-term insert failed", "error", err)
		return false
	}
	logger.Debug("short-term memory inserted", "id", id)
	return true
}
