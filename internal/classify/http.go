package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaigo-labs/omoide/internal/model"
)

// HTTPClassifier calls an external classifier service hosting both the
// question/statement and topic models.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClassifier creates a classifier client.
func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type qaResponse struct {
	Label string `json:"label"`
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// ClassifyQA implements QAClassifier.
func (c *HTTPClassifier) ClassifyQA(ctx context.Context, text string) (model.QAType, error) {
	var resp qaResponse
	if err := c.post(ctx, "/classify/qa", classifyRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	switch model.QAType(resp.Label) {
	case model.QAQuestion:
		return model.QAQuestion, nil
	case model.QAStatement:
		return model.QAStatement, nil
	}
	return "", fmt.Errorf("classify: unknown qa label %q", resp.Label)
}

// ClassifyTopics implements TopicClassifier.
func (c *HTTPClassifier) ClassifyTopics(ctx context.Context, text string) ([]model.Bucket, error) {
	var resp topicsResponse
	if err := c.post(ctx, "/classify/topics", classifyRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Bucket, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		out = append(out, model.Bucket(t))
	}
	return out, nil
}

func (c *HTTPClassifier) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("classify: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("classify: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("classify: %s returned %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("classify: decode response: %w", err)
	}
	return nil
}
