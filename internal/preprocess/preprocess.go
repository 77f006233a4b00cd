// Package preprocess splits raw user text into sentences before routing.
// Downstream only consumes the first sentence; multi-sentence turns are
// deliberately reduced to their opening sentence.
package preprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaigo-labs/omoide/internal/model"
)

// Preprocessor produces the sentence list for a turn of user text.
type Preprocessor interface {
	Sentences(ctx context.Context, text string) ([]string, error)
}

// FirstSentence runs p and returns the opening sentence. Empty input is a
// validation error; a preprocessor with no output falls back to the raw text.
func FirstSentence(ctx context.Context, p Preprocessor, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", model.ErrValidation)
	}
	sentences, err := p.Sentences(ctx, text)
	if err != nil {
		return "", err
	}
	if len(sentences) == 0 || strings.TrimSpace(sentences[0]) == "" {
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(sentences[0]), nil
}

// Splitter is the local sentence splitter used when no NLP service is
// configured. It splits on terminal punctuation and keeps the terminator
// attached, so questions stay recognizable downstream.
type Splitter struct{}

// Sentences implements Preprocessor.
func (Splitter) Sentences(_ context.Context, text string) ([]string, error) {
	var out []string
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out, nil
}
