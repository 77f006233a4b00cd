package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(t *testing.T, handler http.HandlerFunc) *OpenAIPlanner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewOpenAIPlanner("test-key", "gpt-4o-mini")
	require.NoError(t, err)
	p.url = srv.URL
	return p
}

func TestPlanParsesToolCalls(t *testing.T) {
	p := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Tools, 4)

		_, _ = w.Write([]byte(`{
			"choices": [{"message": {
				"content": "",
				"tool_calls": [
					{"id": "call_1", "function": {"name": "retrieve_healthcare", "arguments": "{\"query\": \"doctor appointment\"}"}},
					{"id": "call_2", "function": {"name": "insert_statement", "arguments": "{\"content\": \"started vitamin D\"}"}}
				]
			}}]
		}`))
	})

	plan, err := p.Plan(context.Background(), []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: "I started taking vitamin D"},
	})
	require.NoError(t, err)
	require.Len(t, plan.ToolCalls, 2)
	assert.Equal(t, ToolRetrieveHealthcare, plan.ToolCalls[0].Name)
	assert.Equal(t, "doctor appointment", plan.ToolCalls[0].Arg)
	assert.Equal(t, ToolInsertStatement, plan.ToolCalls[1].Name)
	assert.Equal(t, "started vitamin D", plan.ToolCalls[1].Arg)
}

func TestPlanNoToolCalls(t *testing.T) {
	p := newTestPlanner(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "Nothing to do."}}]}`))
	})

	plan, err := p.Plan(context.Background(), []Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.Empty(t, plan.ToolCalls)
	assert.Equal(t, "Nothing to do.", plan.Content)
}

func TestPlanBackendError(t *testing.T) {
	p := newTestPlanner(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})

	_, err := p.Plan(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrPlanner)
}

func TestParseArg(t *testing.T) {
	assert.Equal(t, "q1", parseArg(`{"query": "q1"}`))
	assert.Equal(t, "c1", parseArg(`{"content": "c1"}`))
	assert.Equal(t, "other", parseArg(`{"text": "other"}`))
	assert.Empty(t, parseArg(`{broken json`))
	assert.Empty(t, parseArg(`{}`))
}

func TestNewOpenAIPlannerValidation(t *testing.T) {
	_, err := NewOpenAIPlanner("", "gpt-4o-mini")
	assert.Error(t, err)

	_, err = NewOpenAIPlanner("key", "")
	assert.Error(t, err)
}
