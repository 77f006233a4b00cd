package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicListUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TopicList
		wantErr bool
	}{
		{name: "single string", input: `"healthcare"`, want: TopicList{"healthcare"}},
		{name: "array", input: `["short-term","long-term"]`, want: TopicList{"short-term", "long-term"}},
		{name: "empty array", input: `[]`, want: TopicList{}},
		{name: "number", input: `42`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TopicList
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidateText(t *testing.T) {
	text, ok := Candidate{Content: "went to the park"}.Text()
	require.True(t, ok)
	assert.Equal(t, "went to the park", text)

	text, ok = Candidate{Value: "two daughters"}.Text()
	require.True(t, ok)
	assert.Equal(t, "two daughters", text)

	text, ok = Candidate{Description: "type 2 diabetes"}.Text()
	require.True(t, ok)
	assert.Equal(t, "type 2 diabetes", text)

	_, ok = Candidate{Key: "family"}.Text()
	assert.False(t, ok)
}

func TestCandidateTimestamp(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	ts, ok := Candidate{CreatedAt: &created}.Timestamp()
	require.True(t, ok)
	assert.Equal(t, created, ts)

	ts, ok = Candidate{LastUpdated: &updated}.Timestamp()
	require.True(t, ok)
	assert.Equal(t, updated, ts)

	_, ok = Candidate{}.Timestamp()
	assert.False(t, ok)
}

func TestFinalChunkStripsScores(t *testing.T) {
	id := uuid.New()
	c := Candidate{
		ID:          id,
		Bucket:      BucketShortTerm,
		Content:     "ate laksa for lunch",
		HybridScore: 0.91,
		CEScore:     0.88,
		MMRScore:    0.42,
	}
	chunk := c.FinalChunk()

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, id.String(), raw["id"])
	assert.Equal(t, "ate laksa for lunch", raw["content"])
	assert.NotContains(t, raw, "hybrid_score")
	assert.NotContains(t, raw, "ce_score")
	assert.NotContains(t, raw, "mmr_score")
	assert.NotContains(t, raw, "embedding")
	assert.NotContains(t, raw, "category")
}
