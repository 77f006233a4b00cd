package classify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaigo-labs/omoide/internal/model"
)

var testLogger = slog.New(slog.DiscardHandler)

type stubQA struct {
	qa  model.QAType
	err error
}

func (s stubQA) ClassifyQA(context.Context, string) (model.QAType, error) { return s.qa, s.err }

type stubTopics struct {
	topics []model.Bucket
	err    error
}

func (s stubTopics) ClassifyTopics(context.Context, string) ([]model.Bucket, error) {
	return s.topics, s.err
}

func TestRouterRoute(t *testing.T) {
	r := NewRouter(
		stubQA{qa: model.QAQuestion},
		stubTopics{topics: []model.Bucket{model.BucketHealthcare, model.BucketShortTerm}},
		testLogger,
	)

	got, err := r.Route(context.Background(), "when is my appointment?")
	require.NoError(t, err)
	assert.Equal(t, model.QAQuestion, got.QAType)
	assert.Equal(t, []model.Bucket{model.BucketHealthcare, model.BucketShortTerm}, got.Topics)
}

func TestRouterEmptyTopicsFallsBackToShortTerm(t *testing.T) {
	r := NewRouter(stubQA{qa: model.QAStatement}, stubTopics{}, testLogger)

	got, err := r.Route(context.Background(), "I had lunch")
	require.NoError(t, err)
	assert.Equal(t, []model.Bucket{model.BucketShortTerm}, got.Topics)
}

func TestRouterDropsUnknownAndDuplicateTopics(t *testing.T) {
	r := NewRouter(stubQA{qa: model.QAStatement}, stubTopics{topics: []model.Bucket{
		"medium-term", model.BucketLongTerm, model.BucketLongTerm,
	}}, testLogger)

	got, err := r.Route(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []model.Bucket{model.BucketLongTerm}, got.Topics)
}

func TestRouterClassifierFailure(t *testing.T) {
	r := NewRouter(stubQA{err: errors.New("model down")}, stubTopics{}, testLogger)
	_, err := r.Route(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qa")
}

func TestKeywordQA(t *testing.T) {
	tests := []struct {
		text string
		want model.QAType
	}{
		{"When is my next appointment?", model.QAQuestion},
		{"what did I eat yesterday", model.QAQuestion},
		{"Remind me about my pills", model.QAQuestion},
		{"I went to the market today.", model.QAStatement},
		{"My daughter visited.", model.QAStatement},
	}
	for _, tt := range tests {
		got, err := KeywordClassifier{}.ClassifyQA(context.Background(), tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "text %q", tt.text)
	}
}

func TestKeywordTopics(t *testing.T) {
	got, err := KeywordClassifier{}.ClassifyTopics(context.Background(), "The doctor changed my medication")
	require.NoError(t, err)
	assert.Contains(t, got, model.BucketHealthcare)
	assert.Contains(t, got, model.BucketShortTerm)

	got, err = KeywordClassifier{}.ClassifyTopics(context.Background(), "My granddaughter got married")
	require.NoError(t, err)
	assert.Contains(t, got, model.BucketLongTerm)

	got, err = KeywordClassifier{}.ClassifyTopics(context.Background(), "It rained this morning")
	require.NoError(t, err)
	assert.Equal(t, []model.Bucket{model.BucketShortTerm}, got)
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/classify/qa":
			_ = json.NewEncoder(w).Encode(qaResponse{Label: "question"})
		case "/classify/topics":
			_ = json.NewEncoder(w).Encode(topicsResponse{Topics: []string{"healthcare"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)

	qa, err := c.ClassifyQA(context.Background(), "when?")
	require.NoError(t, err)
	assert.Equal(t, model.QAQuestion, qa)

	topics, err := c.ClassifyTopics(context.Background(), "doctor visit")
	require.NoError(t, err)
	assert.Equal(t, []model.Bucket{model.BucketHealthcare}, topics)
}

func TestHTTPClassifierBadLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(qaResponse{Label: "exclamation"})
	}))
	defer srv.Close()

	_, err := NewHTTPClassifier(srv.URL).ClassifyQA(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown qa label")
}
