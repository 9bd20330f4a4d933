package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nasirperwez/rail-chatbot-backend/internal/llm"
	"github.com/nasirperwez/rail-chatbot-backend/internal/logging"
)

const defaultBaseURL = "https://api.openai.com/v1"

// systemPrompt frames every conversation sent to the model.
const systemPrompt = `You are a helpful Indian Railways assistant powered by IRCTC tools.
You can help users with:
- Checking PNR status
- Finding trains between stations
- Getting train schedules
- Checking seat availability
- Getting fare information
- Train live status
- And more railway-related queries

When users ask about trains, use the available tools to fetch real-time information.
Always be helpful and provide clear, concise responses.
If a tool returns an error, explain it to the user in a friendly way.`

// Client talks to the OpenAI chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an OpenAI client for the given model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// --- wire types ---

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

type chatFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Turn sends the conversation to the chat completions endpoint and
// classifies the reply. Failures come back as llm.ErrorResult; Turn never
// panics or returns an error through a second channel.
func (c *Client) Turn(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) llm.TurnResult {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: c.buildMessages(messages),
	}

	// The provider must not be told tools exist if none are offered, so
	// both tools and tool_choice stay absent for an empty catalogue.
	if len(tools) > 0 {
		reqBody.Tools = buildTools(tools)
		reqBody.ToolChoice = "auto"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return llm.ErrorResult{Message: "failed to encode chat request: " + err.Error(), Cause: err}
	}

	logging.Debug("Sending %d messages to OpenAI", len(reqBody.Messages))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.ErrorResult{Message: "failed to build chat request: " + err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.ErrorResult{Message: "chat request failed: " + err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.ErrorResult{Message: "failed to read chat response: " + err.Error(), Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
		return llm.ErrorResult{Message: err.Error(), Cause: err}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return llm.ErrorResult{Message: "failed to decode chat response: " + err.Error(), Cause: err}
	}
	if len(parsed.Choices) == 0 {
		err := fmt.Errorf("openai returned no choices")
		return llm.ErrorResult{Message: err.Error(), Cause: err}
	}

	message := parsed.Choices[0].Message

	if len(message.ToolCalls) > 0 {
		calls := make([]llm.ToolCall, 0, len(message.ToolCalls))
		for _, tc := range message.ToolCalls {
			// Malformed argument JSON degrades to an empty map; a bad
			// argument blob must not abort the whole turn.
			args := map[string]interface{}{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				logging.Warn("Unparseable tool call arguments for %s: %v", tc.Function.Name, err)
				args = map[string]interface{}{}
			}
			id := tc.ID
			if id == "" {
				id = uuid.New().String()
			}
			calls = append(calls, llm.ToolCall{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		logging.Info("LLM requested %d tool calls", len(calls))
		return llm.ToolCallsResult{ToolCalls: calls}
	}

	text := ""
	if message.Content != nil {
		text = *message.Content
	}
	return llm.TextResult{Text: text}
}

// buildMessages translates the conversation into the provider shape, with
// the system instruction always first.
func (c *Client) buildMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	out = append(out, chatMessage{Role: string(llm.RoleSystem), Content: systemPrompt})

	for _, msg := range messages {
		cm := chatMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func buildTools(tools []llm.ToolDefinition) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, tool := range tools {
		description := tool.Description
		if description == "" {
			description = tool.Name
		}
		parameters := tool.InputSchema
		if parameters == nil {
			parameters = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        tool.Name,
				Description: description,
				Parameters:  parameters,
			},
		})
	}
	return out
}
