package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/singleflight"

	"github.com/kaigo-labs/omoide/internal/model"
)

// TEIProvider talks to a text-embeddings-inference server. The same server
// (or a second one at rerankURL) serves cross-encoder scoring via /rerank.
type TEIProvider struct {
	embedURL  string
	rerankURL string
	dims      int
	client    *http.Client

	// Health probes from concurrent readiness checks collapse into one
	// in-flight request.
	health singleflight.Group
}

// NewTEIProvider creates a provider against a TEI-style server.
// rerankURL may equal embedURL when one server hosts both models.
func NewTEIProvider(embedURL, rerankURL string, dims int) *TEIProvider {
	if rerankURL == "" {
		rerankURL = embedURL
	}
	return &TEIProvider{
		embedURL:  embedURL,
		rerankURL: rerankURL,
		dims:      dims,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type teiEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

type teiRerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Embed generates an embedding for a single text.
func (p *TEIProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// Empty or whitespace-only texts are a validation error, not a backend
// call. Returned vectors are rescaled to unit L2 norm so the cosine math
// downstream (pgvector `<=>`, the reranker's similarity matrix) holds no
// matter what the backend model emits.
func (p *TEIProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: empty text at index %d", model.ErrValidation, i)
		}
	}

	var raw [][]float32
	if err := p.post(ctx, p.embedURL+"/embed", teiEmbedRequest{Inputs: texts}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(raw), len(texts))
	}

	out := make([]pgvector.Vector, len(raw))
	for i, v := range raw {
		if len(v) != p.dims {
			return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(v), p.dims)
		}
		normed, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("embedding: vector %d: %w", i, err)
		}
		out[i] = pgvector.NewVector(normed)
	}
	return out, nil
}

// normalize rescales v to unit L2 norm. A zero vector cannot be
// normalized and means the backend is broken.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, fmt.Errorf("zero vector")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Dimensions returns the configured vector dimension.
func (p *TEIProvider) Dimensions() int {
	return p.dims
}

// Scores returns cross-encoder relevance scores for each text against query,
// in input order.
func (p *TEIProvider) Scores(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var results []teiRerankResult
	if err := p.post(ctx, p.rerankURL+"/rerank", teiRerankRequest{Query: query, Texts: texts}, &results); err != nil {
		return nil, err
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d rerank scores for %d texts", len(results), len(texts))
	}

	// The server returns results sorted by score; restore input order.
	out := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: rerank index %d out of range", r.Index)
		}
		out[r.Index] = r.Score
	}
	return out, nil
}

// Healthy probes the embedding server. Concurrent calls share one probe.
func (p *TEIProvider) Healthy(ctx context.Context) error {
	_, err, _ := p.health.Do("health", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.embedURL+"/health", nil)
		if err != nil {
			return nil, fmt.Errorf("embedding: build health request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

func (p *TEIProvider) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding: %s returned %d: %s", url, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}
