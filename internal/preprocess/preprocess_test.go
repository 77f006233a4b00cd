package preprocess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaigo-labs/omoide/internal/model"
)

func TestSplitter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "multiple sentences",
			text: "I went to the market. I bought fish. It was fresh!",
			want: []string{"I went to the market.", "I bought fish.", "It was fresh!"},
		},
		{
			name: "question keeps its mark",
			text: "When is my appointment? I forgot.",
			want: []string{"When is my appointment?", "I forgot."},
		},
		{
			name: "no terminal punctuation",
			text: "my daughter visited today",
			want: []string{"my daughter visited today"},
		},
		{
			name: "cjk punctuation",
			text: "今天下雨了。我没有出门。",
			want: []string{"今天下雨了。", "我没有出门。"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Splitter{}.Sentences(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstSentence(t *testing.T) {
	got, err := FirstSentence(context.Background(), Splitter{}, "First thing. Second thing.")
	require.NoError(t, err)
	assert.Equal(t, "First thing.", got)
}

func TestFirstSentenceEmptyText(t *testing.T) {
	_, err := FirstSentence(context.Background(), Splitter{}, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

type emptyPreprocessor struct{}

func (emptyPreprocessor) Sentences(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestFirstSentenceFallsBackToRawText(t *testing.T) {
	got, err := FirstSentence(context.Background(), emptyPreprocessor{}, "  raw text  ")
	require.NoError(t, err)
	assert.Equal(t, "raw text", got)
}
