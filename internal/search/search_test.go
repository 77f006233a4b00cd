package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaigo-labs/omoide/internal/model"
)

type fakeStore struct {
	dense      []model.Candidate
	lexical    []model.Candidate
	denseErr   error
	lexicalErr error
}

func (f *fakeStore) DenseSearch(_ context.Context, _ model.Bucket, _ uuid.UUID, _ pgvector.Vector, _ int, _ *float64) ([]model.Candidate, error) {
	return f.dense, f.denseErr
}

func (f *fakeStore) LexicalSearch(_ context.Context, _ model.Bucket, _ uuid.UUID, _ string, _, _ int) ([]model.Candidate, error) {
	return f.lexical, f.lexicalErr
}

var testLogger = slog.New(slog.DiscardHandler)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

var (
	idA = mustUUID("00000000-0000-0000-0000-00000000000a")
	idB = mustUUID("00000000-0000-0000-0000-00000000000b")
	idC = mustUUID("00000000-0000-0000-0000-00000000000c")
)

func defaultParams() Params {
	return Params{TopK: 25, Alpha: 0.5, FuzzyDistance: 2}
}

func search(t *testing.T, store Store, p Params) []model.Candidate {
	t.Helper()
	ix := New(store, testLogger)
	got, err := ix.Search(context.Background(), model.BucketShortTerm, uuid.New(), "query", pgvector.NewVector([]float32{1, 0}), p)
	require.NoError(t, err)
	return got
}

func TestSearchFusesBothPaths(t *testing.T) {
	store := &fakeStore{
		dense: []model.Candidate{
			{ID: idA, Content: "a", EmbScore: 0.9},
			{ID: idB, Content: "b", EmbScore: 0.5},
		},
		lexical: []model.Candidate{
			{ID: idB, Content: "b", BM25Score: 4.0},
			{ID: idC, Content: "c", BM25Score: 2.0},
		},
	}

	got := search(t, store, defaultParams())
	require.Len(t, got, 3)

	byID := map[uuid.UUID]model.Candidate{}
	for _, c := range got {
		byID[c.ID] = c
	}

	// idB: bm25 normalized to 1.0, emb 0.5 -> 0.5*1 + 0.5*0.5 = 0.75
	assert.InDelta(t, 0.75, byID[idB].HybridScore, 1e-9)
	// idA: dense only -> 0.5*0 + 0.5*0.9 = 0.45
	assert.InDelta(t, 0.45, byID[idA].HybridScore, 1e-9)
	// idC: lexical only, bm25 2/4=0.5 -> 0.25
	assert.InDelta(t, 0.25, byID[idC].HybridScore, 1e-9)

	// Sorted descending by hybrid.
	assert.Equal(t, []uuid.UUID{idB, idA, idC}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
}

func TestSearchNoDuplicateIDs(t *testing.T) {
	shared := model.Candidate{ID: idA, Content: "a", EmbScore: 0.8}
	store := &fakeStore{
		dense:   []model.Candidate{shared},
		lexical: []model.Candidate{{ID: idA, Content: "a", BM25Score: 3.0}},
	}

	got := search(t, store, defaultParams())
	require.Len(t, got, 1)
	// Dense hydration wins, lexical contributes the bm25 score.
	assert.InDelta(t, 0.8, got[0].EmbScore, 1e-9)
	assert.InDelta(t, 1.0, got[0].BM25Score, 1e-9)
}

func TestSearchAlphaExtremes(t *testing.T) {
	store := &fakeStore{
		dense:   []model.Candidate{{ID: idA, EmbScore: 0.9}},
		lexical: []model.Candidate{{ID: idB, BM25Score: 5.0}},
	}

	p := defaultParams()
	p.Alpha = 1.0 // lexical only
	got := search(t, store, p)
	assert.Equal(t, idB, got[0].ID)
	assert.InDelta(t, 1.0, got[0].HybridScore, 1e-9)
	assert.InDelta(t, 0.0, got[1].HybridScore, 1e-9)

	p.Alpha = 0.0 // dense only
	got = search(t, store, p)
	assert.Equal(t, idA, got[0].ID)
	assert.InDelta(t, 0.9, got[0].HybridScore, 1e-9)
}

func TestSearchTieBreaksByID(t *testing.T) {
	store := &fakeStore{
		dense: []model.Candidate{
			{ID: idB, EmbScore: 0.6},
			{ID: idA, EmbScore: 0.6},
		},
	}

	got := search(t, store, defaultParams())
	require.Len(t, got, 2)
	assert.Equal(t, idA, got[0].ID)
	assert.Equal(t, idB, got[1].ID)
}

func TestSearchTruncatesToTopK(t *testing.T) {
	var dense []model.Candidate
	for i := range 30 {
		dense = append(dense, model.Candidate{ID: uuid.New(), EmbScore: float64(i) / 30})
	}
	store := &fakeStore{dense: dense}

	p := defaultParams()
	p.TopK = 10
	got := search(t, store, p)
	assert.Len(t, got, 10)
}

func TestSearchStoreFailureFailsBucket(t *testing.T) {
	store := &fakeStore{
		dense:      []model.Candidate{{ID: idA, EmbScore: 0.9}},
		lexicalErr: errors.New("index offline"),
	}

	ix := New(store, testLogger)
	got, err := ix.Search(context.Background(), model.BucketShortTerm, uuid.New(), "query", pgvector.NewVector(nil), defaultParams())
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestSearchValidation(t *testing.T) {
	ix := New(&fakeStore{}, testLogger)

	_, err := ix.Search(context.Background(), model.BucketShortTerm, uuid.New(), "  ", pgvector.NewVector(nil), defaultParams())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = ix.Search(context.Background(), model.BucketShortTerm, uuid.Nil, "query", pgvector.NewVector(nil), defaultParams())
	assert.ErrorIs(t, err, model.ErrValidation)

	p := defaultParams()
	p.Alpha = 1.5
	_, err = ix.Search(context.Background(), model.BucketShortTerm, uuid.New(), "query", pgvector.NewVector(nil), p)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSearchHybridRounding(t *testing.T) {
	store := &fakeStore{
		dense: []model.Candidate{{ID: idA, EmbScore: 0.123456}},
	}
	got := search(t, store, defaultParams())
	assert.InDelta(t, 0.0617, got[0].HybridScore, 1e-9)
}
