// Package planner turns a user turn into a plan of memory-tool calls.
// The production implementation asks an OpenAI chat model bound to four
// tools; the interface keeps the model swappable and the graphs testable.
package planner

import (
	"context"
	"errors"
)

// Tool names the planner may emit. Each takes a single string argument.
const (
	ToolRetrieveLongTerm   = "retrieve_long_term"
	ToolRetrieveHealthcare = "retrieve_healthcare"
	ToolRetrieveShortTerm  = "retrieve_short_term"
	ToolInsertStatement    = "insert_statement"
)

// ErrPlanner marks planner backend failures. The online graph ends the
// request with empty results instead of propagating.
var ErrPlanner = errors.New("planner: backend failed")

// Message is one turn of the planning conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", or "tool"
	Content string `json:"content"`
	// Name and ToolCallID are set on "tool" messages answering a planned
	// tool call.
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	// Arg is the tool's single string argument ("query" for retrievals,
	// "content" for insertion). Empty when the model omitted it.
	Arg string
}

// Plan is the model's decision for one turn: zero or more tool calls plus
// any direct assistant content.
type Plan struct {
	Content   string
	ToolCalls []ToolCall
}

// Planner decides which memory tools serve a user turn.
type Planner interface {
	Plan(ctx context.Context, messages []Message) (Plan, error)
}
