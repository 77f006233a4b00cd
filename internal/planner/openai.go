package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// OpenAIPlanner plans tool calls via the OpenAI chat completions API with
// the four memory tools bound.
type OpenAIPlanner struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewOpenAIPlanner creates a planner for the given model (e.g. gpt-4o-mini).
func NewOpenAIPlanner(apiKey, model string) (*OpenAIPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("planner: API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("planner: model is required")
	}
	return &OpenAIPlanner{
		apiKey: apiKey,
		model:  model,
		url:    openAIChatURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type chatRequest struct {
	Model    string     `json:"model"`
	Messages []Message  `json:"messages"`
	Tools    []toolSpec `json:"tools"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// stringArg builds the schema for a tool taking one required string field.
func stringArg(name, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{name},
	}
}

var memoryTools = []toolSpec{
	{Type: "function", Function: functionSpec{
		Name:        ToolRetrieveLongTerm,
		Description: "Search long-term memory: core identity, life events, relationships, preferences.",
		Parameters:  stringArg("query", "Search query for long-term memory."),
	}},
	{Type: "function", Function: functionSpec{
		Name:        ToolRetrieveHealthcare,
		Description: "Search healthcare memory: medical history, appointments, medications, conditions.",
		Parameters:  stringArg("query", "Search query for healthcare memory."),
	}},
	{Type: "function", Function: functionSpec{
		Name:        ToolRetrieveShortTerm,
		Description: "Search short-term memory: recent conversations, daily to-dos, temporary information.",
		Parameters:  stringArg("query", "Search query for short-term memory."),
	}},
	{Type: "function", Function: functionSpec{
		Name:        ToolInsertStatement,
		Description: "Store new information from the user's message into memory for future reference.",
		Parameters:  stringArg("content", "The statement to remember."),
	}},
}

// Plan implements Planner.
func (p *OpenAIPlanner) Plan(ctx context.Context, messages []Message) (Plan, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    memoryTools,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planner: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Plan{}, fmt.Errorf("planner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrPlanner, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Plan{}, fmt.Errorf("%w: status %d: %s", ErrPlanner, resp.StatusCode, string(data))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Plan{}, fmt.Errorf("%w: decode response: %v", ErrPlanner, err)
	}
	if out.Error != nil {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanner, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Plan{}, fmt.Errorf("%w: no choices returned", ErrPlanner)
	}

	msg := out.Choices[0].Message
	plan := Plan{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		plan.ToolCalls = append(plan.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Arg:  parseArg(tc.Function.Arguments),
		})
	}
	return plan, nil
}

// parseArg extracts the single string argument from a tool call's JSON
// arguments. Models occasionally emit malformed JSON; that degrades to an
// empty argument rather than failing the plan.
func parseArg(arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	for _, key := range []string{"query", "content"} {
		if v, ok := args[key].(string); ok {
			return v
		}
	}
	// Single-property schemas: take whatever string the model sent.
	for _, v := range args {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
