package classify

import (
	"context"
	"strings"

	"github.com/kaigo-labs/omoide/internal/model"
)

// KeywordClassifier is a deterministic fallback used when no classifier
// service is configured. It is intentionally conservative: anything that
// does not look like a question is a statement, and anything that matches
// no domain vocabulary lands in the short-term bucket.
type KeywordClassifier struct{}

var interrogatives = []string{
	"what", "when", "where", "who", "whom", "whose", "why", "how",
	"which", "do i", "did i", "does", "am i", "is my", "are my",
	"can you", "could you", "have i", "remind me",
}

var healthcareTerms = []string{
	"doctor", "clinic", "hospital", "appointment", "medication", "medicine",
	"pill", "dose", "prescription", "surgery", "operation", "diagnosis",
	"blood pressure", "diabetes", "checkup", "check-up", "polyclinic",
	"specialist", "therapy", "vaccine", "injection",
}

var longTermTerms = []string{
	"family", "daughter", "son", "grandchild", "grandson", "granddaughter",
	"wife", "husband", "married", "wedding", "school", "university",
	"career", "job", "work", "retired", "retirement", "hometown",
	"birthday", "savings", "cpf", "insurance", "will", "lawyer", "finance",
	"hobby", "hobbies", "church", "temple", "mosque",
}

// ClassifyQA implements QAClassifier.
func (KeywordClassifier) ClassifyQA(_ context.Context, text string) (model.QAType, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return model.QAQuestion, nil
	}
	lower := strings.ToLower(trimmed)
	for _, w := range interrogatives {
		if strings.HasPrefix(lower, w+" ") || lower == w {
			return model.QAQuestion, nil
		}
	}
	return model.QAStatement, nil
}

// ClassifyTopics implements TopicClassifier.
func (KeywordClassifier) ClassifyTopics(_ context.Context, text string) ([]model.Bucket, error) {
	lower := strings.ToLower(text)
	var out []model.Bucket
	if containsAny(lower, healthcareTerms) {
		out = append(out, model.BucketHealthcare)
	}
	if containsAny(lower, longTermTerms) {
		out = append(out, model.BucketLongTerm)
	}
	// Recent conversation context is almost always relevant.
	out = append(out, model.BucketShortTerm)
	return out, nil
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
