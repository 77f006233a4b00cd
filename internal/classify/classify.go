// Package classify routes user text: question vs statement, and which
// memory buckets the text concerns. The offline graph consumes both
// signals; the online graph bypasses classification entirely.
package classify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kaigo-labs/omoide/internal/model"
)

// QAClassifier decides whether text asks or tells.
type QAClassifier interface {
	ClassifyQA(ctx context.Context, text string) (model.QAType, error)
}

// TopicClassifier maps text to the memory buckets it concerns.
type TopicClassifier interface {
	ClassifyTopics(ctx context.Context, text string) ([]model.Bucket, error)
}

// Result is the routing decision for one offline request.
type Result struct {
	QAType model.QAType
	Topics []model.Bucket
}

// Router runs both classifiers concurrently and normalizes their output.
type Router struct {
	qa     QAClassifier
	topics TopicClassifier
	logger *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(qa QAClassifier, topics TopicClassifier, logger *slog.Logger) *Router {
	return &Router{qa: qa, topics: topics, logger: logger}
}

// Route classifies text. The two classifiers are independent, so they run
// in parallel. An empty or all-invalid topic list falls back to the
// short-term bucket; unknown topic labels are dropped with a warning.
func (r *Router) Route(ctx context.Context, text string) (Result, error) {
	var (
		qa     model.QAType
		topics []model.Bucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		qa, err = r.qa.ClassifyQA(gctx, text)
		if err != nil {
			return fmt.Errorf("classify: qa: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		topics, err = r.topics.ClassifyTopics(gctx, text)
		if err != nil {
			return fmt.Errorf("classify: topics: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{QAType: qa, Topics: r.normalize(topics)}, nil
}

// Normalize validates an externally supplied topic list (e.g. a caller
// override on /invoke) with the same fallback rules as Route.
func (r *Router) Normalize(topics []model.Bucket) []model.Bucket {
	return r.normalize(topics)
}

func (r *Router) normalize(topics []model.Bucket) []model.Bucket {
	seen := make(map[model.Bucket]bool, len(topics))
	out := make([]model.Bucket, 0, len(topics))
	for _, topic := range topics {
		if !topic.Valid() {
			r.logger.Warn("dropping unknown topic", "topic", topic)
			continue
		}
		if seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
	}
	if len(out) == 0 {
		return []model.Bucket{model.BucketShortTerm}
	}
	return out
}
