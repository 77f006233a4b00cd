package graph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/planner"
	"github.com/kaigo-labs/omoide/internal/rerank"
	"github.com/kaigo-labs/omoide/internal/search"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
	"github.com/kaigo-labs/omoide/internal/session"
)

var testLogger = slog.New(slog.DiscardHandler)

// fakeStore serves canned candidates per bucket and records call counts.
type fakeStore struct {
	mu      sync.Mutex
	results map[model.Bucket][]model.Candidate
	errs    map[model.Bucket]error
	calls   map[model.Bucket]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: map[model.Bucket][]model.Candidate{},
		errs:    map[model.Bucket]error{},
		calls:   map[model.Bucket]int{},
	}
}

func (f *fakeStore) DenseSearch(_ context.Context, bucket model.Bucket, _ uuid.UUID, _ pgvector.Vector, _ int, _ *float64) ([]model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[bucket]++
	return f.results[bucket], f.errs[bucket]
}

func (f *fakeStore) LexicalSearch(_ context.Context, bucket model.Bucket, _ uuid.UUID, _ string, _, _ int) ([]model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.errs[bucket]
}

func (f *fakeStore) denseCalls(bucket model.Bucket) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[bucket]
}

// fakeWriter records inserts.
type fakeWriter struct {
	mu       sync.Mutex
	contents []string
	err      error
}

func (f *fakeWriter) InsertShortTerm(_ context.Context, _ uuid.UUID, content string, _ *pgvector.Vector) (uuid.UUID, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, time.Time{}, f.err
	}
	f.contents = append(f.contents, content)
	return uuid.New(), time.Now(), nil
}

func (f *fakeWriter) inserted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contents...)
}

// failingEmbedder fails Embed a configurable number of times.
type failingEmbedder struct {
	mu       sync.Mutex
	failures int
	dims     int
}

func (f *failingEmbedder) Embed(_ context.Context, _ string) (pgvector.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures != 0 {
		f.failures--
		return pgvector.Vector{}, errors.New("embedder offline")
	}
	return pgvector.NewVector(make([]float32, f.dims)), nil
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

// fakePlanner returns a canned plan.
type fakePlanner struct {
	plan planner.Plan
	err  error
}

func (f *fakePlanner) Plan(context.Context, []planner.Message) (planner.Plan, error) {
	return f.plan, f.err
}

func candidateFor(bucket model.Bucket, content string) model.Candidate {
	c := model.Candidate{
		ID:        uuid.New(),
		Bucket:    bucket,
		Embedding: pgvector.NewVector([]float32{1, 0}),
		EmbScore:  0.9,
	}
	switch bucket {
	case model.BucketLongTerm:
		c.Value = content
	case model.BucketHealthcare:
		c.Description = content
	default:
		c.Content = content
	}
	return c
}

func testSession(store search.Store, writer session.Writer, emb embedding.Provider, p planner.Planner) *session.Context {
	return &session.Context{
		ElderlyID: uuid.New(),
		Index:     search.New(store, testLogger),
		Writer:    writer,
		Embedder:  emb,
		Reranker:  rerank.New(&embedding.StaticCrossEncoder{Values: []float64{0.9, 0.5}}, testLogger),
		Planner:   p,
	}
}

func testConfig() Config {
	return Config{
		Retrieval:     search.Params{TopK: 25, Alpha: 0.5, FuzzyDistance: 2},
		Rerank:        rerank.Options{AlphaMMR: 0.75, BetaRecency: 0.1, TopK: 8},
		BucketTimeout: 5 * time.Second,
	}
}

func TestOfflineQuestionRetrievesWithoutInsert(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketHealthcare] = []model.Candidate{candidateFor(model.BucketHealthcare, "takes metformin daily")}
	writer := &fakeWriter{}
	sess := testSession(store, writer, &failingEmbedder{dims: 2}, nil)

	g := NewOffline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "what medication do I take?", model.QAQuestion, []model.Bucket{model.BucketHealthcare})
	require.NoError(t, err)

	assert.Equal(t, "what medication do I take?", res.UserQuery)
	require.Len(t, res.FinalChunks, 1)
	assert.Equal(t, "takes metformin daily", res.FinalChunks[0].Description)
	assert.False(t, res.Inserted)
	assert.Empty(t, writer.inserted())
}

func TestOfflineStatementInsertsAndRetrieves(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketShortTerm] = []model.Candidate{candidateFor(model.BucketShortTerm, "watered the plants")}
	writer := &fakeWriter{}
	sess := testSession(store, writer, &failingEmbedder{dims: 2}, nil)

	g := NewOffline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "I watered the plants today.", model.QAStatement, []model.Bucket{model.BucketShortTerm})
	require.NoError(t, err)

	assert.True(t, res.Inserted)
	assert.Equal(t, []string{"I watered the plants today."}, writer.inserted())
	assert.Len(t, res.FinalChunks, 1)
}

func TestOfflineEmbeddingFailureStillInserts(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketShortTerm] = []model.Candidate{candidateFor(model.BucketShortTerm, "ignored")}
	writer := &fakeWriter{}
	// Both the query embed and the insert embed fail; the row is still written.
	sess := testSession(store, writer, &failingEmbedder{failures: 2, dims: 2}, nil)

	g := NewOffline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "My knee hurt this morning.", model.QAStatement, []model.Bucket{model.BucketShortTerm})
	require.NoError(t, err)

	assert.True(t, res.Inserted)
	assert.Empty(t, res.FinalChunks, "retrieval is fatal on embed failure")
	assert.Equal(t, []string{"My knee hurt this morning."}, writer.inserted())
}

func TestOfflineBucketFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketShortTerm] = []model.Candidate{candidateFor(model.BucketShortTerm, "survivor")}
	store.errs[model.BucketLongTerm] = errors.New("table gone")
	sess := testSession(store, &fakeWriter{}, &failingEmbedder{dims: 2}, nil)

	g := NewOffline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "what did I do?", model.QAQuestion, []model.Bucket{model.BucketLongTerm, model.BucketShortTerm})
	require.NoError(t, err)

	require.Len(t, res.FinalChunks, 1)
	assert.Equal(t, "survivor", res.FinalChunks[0].Content)
}

func TestOfflineDedupesTopics(t *testing.T) {
	store := newFakeStore()
	sess := testSession(store, &fakeWriter{}, &failingEmbedder{dims: 2}, nil)

	g := NewOffline(sess, testConfig(), testLogger)
	_, err := g.Run(context.Background(), "anything?", model.QAQuestion,
		[]model.Bucket{model.BucketShortTerm, model.BucketShortTerm, "bogus"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.denseCalls(model.BucketShortTerm))
}

func TestOfflineValidation(t *testing.T) {
	sess := testSession(newFakeStore(), &fakeWriter{}, &failingEmbedder{dims: 2}, nil)
	g := NewOffline(sess, testConfig(), testLogger)

	_, err := g.Run(context.Background(), "  ", model.QAQuestion, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = g.Run(context.Background(), "text", "exclamation", nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOnlineExecutesPlannedTools(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketHealthcare] = []model.Candidate{candidateFor(model.BucketHealthcare, "vitamin D noted")}
	writer := &fakeWriter{}
	p := &fakePlanner{plan: planner.Plan{ToolCalls: []planner.ToolCall{
		{Name: planner.ToolRetrieveHealthcare, Arg: "vitamin D"},
		{Name: planner.ToolInsertStatement, Arg: "started taking vitamin D"},
	}}}
	sess := testSession(store, writer, &failingEmbedder{dims: 2}, p)

	g := NewOnline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "I started taking vitamin D every morning.")
	require.NoError(t, err)

	assert.True(t, res.Inserted)
	assert.Equal(t, []string{"started taking vitamin D"}, writer.inserted())
	require.Len(t, res.FinalChunks, 1)
	assert.Equal(t, "vitamin D noted", res.FinalChunks[0].Description)
}

func TestOnlinePlannerFailureEndsEmpty(t *testing.T) {
	sess := testSession(newFakeStore(), &fakeWriter{}, &failingEmbedder{dims: 2}, &fakePlanner{err: planner.ErrPlanner})

	g := NewOnline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Empty(t, res.FinalChunks)
	assert.False(t, res.Inserted)
}

func TestOnlineNoToolCallsEndsEmpty(t *testing.T) {
	sess := testSession(newFakeStore(), &fakeWriter{}, &failingEmbedder{dims: 2},
		&fakePlanner{plan: planner.Plan{Content: "just chatting"}})

	g := NewOnline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "nice weather today")
	require.NoError(t, err)
	assert.Empty(t, res.FinalChunks)
	assert.False(t, res.Inserted)
}

func TestOnlineEmbedFailureSkipsRetrievalKeepsInsert(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketShortTerm] = []model.Candidate{candidateFor(model.BucketShortTerm, "ignored")}
	writer := &fakeWriter{}
	p := &fakePlanner{plan: planner.Plan{ToolCalls: []planner.ToolCall{
		{Name: planner.ToolRetrieveShortTerm, Arg: "today"},
		{Name: planner.ToolInsertStatement, Arg: "note this"},
	}}}
	// Query embed fails; insert's own embed succeeds.
	sess := testSession(store, writer, &failingEmbedder{failures: 1, dims: 2}, p)

	g := NewOnline(sess, testConfig(), testLogger)
	res, err := g.Run(context.Background(), "remember this please")
	require.NoError(t, err)

	assert.True(t, res.Inserted)
	assert.Empty(t, res.FinalChunks)
	assert.Zero(t, store.denseCalls(model.BucketShortTerm))
}

func TestOnlineCollapsesDuplicateBuckets(t *testing.T) {
	store := newFakeStore()
	p := &fakePlanner{plan: planner.Plan{ToolCalls: []planner.ToolCall{
		{Name: planner.ToolRetrieveShortTerm, Arg: "a"},
		{Name: planner.ToolRetrieveShortTerm, Arg: "b"},
		{Name: "retrieve_medium_term", Arg: "c"},
	}}}
	sess := testSession(store, &fakeWriter{}, &failingEmbedder{dims: 2}, p)

	g := NewOnline(sess, testConfig(), testLogger)
	_, err := g.Run(context.Background(), "what happened recently?")
	require.NoError(t, err)
	assert.Equal(t, 1, store.denseCalls(model.BucketShortTerm))
}

func TestOnlineToolResponsesAnswerEveryCall(t *testing.T) {
	store := newFakeStore()
	store.results[model.BucketShortTerm] = []model.Candidate{
		candidateFor(model.BucketShortTerm, "fed the cat"),
		candidateFor(model.BucketShortTerm, "went for a walk"),
	}
	writer := &fakeWriter{}
	g := NewOnline(testSession(store, writer, &failingEmbedder{dims: 2}, &fakePlanner{}), testConfig(), testLogger)

	calls := []planner.ToolCall{
		{ID: "call_1", Name: planner.ToolRetrieveShortTerm, Arg: "today"},
		{ID: "call_2", Name: planner.ToolInsertStatement, Arg: "fed the cat"},
		{ID: "call_3", Name: planner.ToolRetrieveShortTerm, Arg: "again"},
		{ID: "call_4", Name: "retrieve_medium_term"},
	}
	_, inserted, responses := g.execute(context.Background(), calls, "what did I do?",
		pgvector.NewVector([]float32{1, 0}), nil)

	assert.True(t, inserted)
	require.Len(t, responses, len(calls))
	for i, r := range responses {
		assert.Equal(t, "tool", r.Role)
		assert.Equal(t, calls[i].Name, r.Name)
		assert.Equal(t, calls[i].ID, r.ToolCallID)
	}
	assert.Equal(t, "retrieved 2 candidates", responses[0].Content)
	assert.Equal(t, "stored", responses[1].Content)
	assert.Equal(t, "duplicate retrieval, skipped", responses[2].Content)
	assert.Equal(t, "unknown tool", responses[3].Content)
}

func TestOnlineToolResponsesWithoutEmbedding(t *testing.T) {
	g := NewOnline(testSession(newFakeStore(), &fakeWriter{}, &failingEmbedder{dims: 2}, &fakePlanner{}),
		testConfig(), testLogger)

	calls := []planner.ToolCall{{ID: "call_1", Name: planner.ToolRetrieveHealthcare, Arg: "pills"}}
	_, _, responses := g.execute(context.Background(), calls, "q",
		pgvector.Vector{}, errors.New("embedder offline"))

	require.Len(t, responses, 1)
	assert.Equal(t, "no query embedding, skipped", responses[0].Content)
}

func TestOnlineWithoutPlannerIsValidationError(t *testing.T) {
	sess := testSession(newFakeStore(), &fakeWriter{}, &failingEmbedder{dims: 2}, nil)
	g := NewOnline(sess, testConfig(), testLogger)

	_, err := g.Run(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrValidation)
}
