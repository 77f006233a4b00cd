package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPreprocessor calls an external NLP service for sentence splitting
// (and whatever tokenization it does internally; only sentences come back).
type HTTPPreprocessor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPreprocessor creates a preprocessor client.
func NewHTTPPreprocessor(baseURL string) *HTTPPreprocessor {
	return &HTTPPreprocessor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type preprocessRequest struct {
	Text string `json:"text"`
}

type preprocessResponse struct {
	Sentences []string `json:"sentences"`
}

// Sentences implements Preprocessor.
func (p *HTTPPreprocessor) Sentences(ctx context.Context, text string) ([]string, error) {
	payload, err := json.Marshal(preprocessRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("preprocess: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/preprocess", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("preprocess: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preprocess: call service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("preprocess: service returned %d: %s", resp.StatusCode, string(data))
	}

	var out preprocessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("preprocess: decode response: %w", err)
	}
	return out.Sentences, nil
}
