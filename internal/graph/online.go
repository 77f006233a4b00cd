package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/planner"
	"github.com/kaigo-labs/omoide/internal/session"
)

// Online runs the planner-driven flow: an LLM bound to the four memory
// tools decides what to retrieve and whether to insert.
type Online struct {
	sess   *session.Context
	cfg    Config
	logger *slog.Logger
}

// NewOnline creates the online flow runner.
func NewOnline(sess *session.Context, cfg Config, logger *slog.Logger) *Online {
	return &Online{sess: sess, cfg: cfg, logger: logger}
}

var toolBuckets = map[string]model.Bucket{
	planner.ToolRetrieveLongTerm:   model.BucketLongTerm,
	planner.ToolRetrieveHealthcare: model.BucketHealthcare,
	planner.ToolRetrieveShortTerm:  model.BucketShortTerm,
}

// Run executes the online flow for query. The query is embedded exactly
// once; every retrieval tool reuses that embedding for its dense path
// while searching with its own query text on the lexical path. Planner
// failures and plans without tool calls both end the request with empty
// results; they are not errors to the caller.
//
// The planning conversation is an append-only transcript: system and
// user turns, the assistant's reply, and one tool-response message per
// planned call. It is logged at debug for plan auditing.
func (g *Online) Run(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("%w: empty query", model.ErrValidation)
	}
	if g.sess.Planner == nil {
		return Result{}, fmt.Errorf("%w: online flow is not configured", model.ErrValidation)
	}

	res := Result{UserQuery: query, FinalChunks: []model.FinalChunk{}}

	emb, embErr := g.sess.Embedder.Embed(ctx, query)
	if embErr != nil {
		g.logger.Error("query embedding failed, retrieval tools will be skipped", "error", embErr)
	}

	transcript := []planner.Message{
		{Role: "system", Content: planner.SystemPrompt},
		{Role: "user", Content: query},
	}
	plan, err := g.sess.Planner.Plan(ctx, transcript)
	if err != nil {
		g.logger.Error("planner failed, ending with empty results", "error", err)
		return res, nil
	}
	if plan.Content != "" {
		transcript = append(transcript, planner.Message{Role: "assistant", Content: plan.Content})
	}
	if len(plan.ToolCalls) == 0 {
		g.logger.Debug("planner requested no tools", "content", plan.Content)
		return res, nil
	}

	candidates, inserted, responses := g.execute(ctx, plan.ToolCalls, query, emb, embErr)
	transcript = append(transcript, responses...)
	g.logger.Debug("plan executed", "tool_calls", len(plan.ToolCalls), "transcript_turns", len(transcript))

	res.Inserted = inserted
	res.FinalChunks = rerankCandidates(ctx, g.sess, g.cfg, g.logger, query, candidates)
	return res, nil
}

// execute runs the planned tool calls concurrently. Retrieval tools that
// lack a usable query embedding are skipped; duplicate retrievals of the
// same bucket collapse into one search. Every planned call gets a
// tool-response message, returned in call order.
func (g *Online) execute(ctx context.Context, calls []planner.ToolCall, query string, emb pgvector.Vector, embErr error) ([]model.Candidate, bool, []planner.Message) {
	var (
		mu       sync.Mutex
		merged   []model.Candidate
		inserted bool
		wg       sync.WaitGroup
	)
	seenBuckets := make(map[model.Bucket]bool, len(calls))
	responses := make([]planner.Message, len(calls))

	for i, call := range calls {
		if call.Name == planner.ToolInsertStatement {
			content := call.Arg
			if strings.TrimSpace(content) == "" {
				content = query
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := insertStatement(ctx, g.sess, g.logger, content)
				mu.Lock()
				inserted = inserted || ok
				mu.Unlock()
				if ok {
					responses[i] = toolResponse(call, "stored")
				} else {
					responses[i] = toolResponse(call, "insert failed")
				}
			}()
			continue
		}

		bucket, ok := toolBuckets[call.Name]
		if !ok {
			g.logger.Warn("planner requested unknown tool", "tool", call.Name)
			responses[i] = toolResponse(call, "unknown tool")
			continue
		}
		if embErr != nil {
			g.logger.Warn("skipping retrieval tool without query embedding", "tool", call.Name)
			responses[i] = toolResponse(call, "no query embedding, skipped")
			continue
		}
		if seenBuckets[bucket] {
			responses[i] = toolResponse(call, "duplicate retrieval, skipped")
			continue
		}
		seenBuckets[bucket] = true

		toolQuery := call.Arg
		if strings.TrimSpace(toolQuery) == "" {
			toolQuery = query
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			found := searchBucket(ctx, g.sess, g.cfg, g.logger, bucket, toolQuery, emb)
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
			responses[i] = toolResponse(call, fmt.Sprintf("retrieved %d candidates", len(found)))
		}()
	}
	wg.Wait()
	return merged, inserted, responses
}

func toolResponse(call planner.ToolCall, content string) planner.Message {
	return planner.Message{Role: "tool", Name: call.Name, ToolCallID: call.ID, Content: content}
}
