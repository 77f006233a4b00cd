// Package session carries the long-lived resources a conversation is
// served with: the memory index, the insertion writer, the embedding
// provider, the reranker, and the planner. Nothing request-scoped lives
// here; per-request state (query embeddings, candidates) belongs to the
// graph run that owns it.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/planner"
	"github.com/kaigo-labs/omoide/internal/rerank"
	"github.com/kaigo-labs/omoide/internal/search"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
)

// Writer persists short-term memories. *storage.DB satisfies it.
type Writer interface {
	InsertShortTerm(ctx context.Context, elderlyID uuid.UUID, content string, embedding *pgvector.Vector) (uuid.UUID, time.Time, error)
}

// Context is the bundle of resources for one elderly user's conversations.
type Context struct {
	ElderlyID uuid.UUID
	Index     *search.Index
	Writer    Writer
	Embedder  embedding.Provider
	Reranker  *rerank.Reranker
	Planner   planner.Planner // nil when the online flow is not configured
}

// Validate checks the context is complete enough to serve requests.
// Planner is optional; everything else is mandatory.
func (c *Context) Validate() error {
	switch {
	case c.ElderlyID == uuid.Nil:
		return fmt.Errorf("session: elderly id is required")
	case c.Index == nil:
		return fmt.Errorf("session: search index is required")
	case c.Writer == nil:
		return fmt.Errorf("session: writer is required")
	case c.Embedder == nil:
		return fmt.Errorf("session: embedder is required")
	case c.Reranker == nil:
		return fmt.Errorf("session: reranker is required")
	}
	return nil
}

// WithElderly returns a copy of the context scoped to a different user.
// The shared resources are reused; only the scope changes.
func (c *Context) WithElderly(id uuid.UUID) *Context {
	clone := *c
	clone.ElderlyID = id
	return &clone
}
