package llm

import (
	"context"
)

// Client performs one chat exchange with the LLM provider and classifies
// the reply. Implementations never return a Go error: every failure path is
// an ErrorResult so the caller branches on the result alone.
type Client interface {
	Turn(ctx context.Context, messages []Message, tools []ToolDefinition) TurnResult
}

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// TurnResult is the classified outcome of one chat exchange. It is a closed
// set: TextResult, ToolCallsResult, or ErrorResult.
type TurnResult interface {
	turnResult()
}

// TextResult is a final text reply.
type TextResult struct {
	Text string
}

// ToolCallsResult is a request from the model to execute tools.
type ToolCallsResult struct {
	ToolCalls []ToolCall
}

// ErrorResult is a provider or transport failure.
type ErrorResult struct {
	Message string
	Cause   error
}

func (TextResult) turnResult()      {}
func (ToolCallsResult) turnResult() {}
func (ErrorResult) turnResult()     {}
