package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nasirperwez/rail-chatbot-backend/internal/llm"
)

// newFakeProvider returns a client pointed at a server that captures the
// request body and replies with the given completion payload.
func newFakeProvider(t *testing.T, status int, reply string) (*Client, *json.RawMessage) {
	t.Helper()

	var captured json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		captured = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key", "gpt-4o-mini")
	client.baseURL = server.URL
	return client, &captured
}

func textReply(text string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(text) + `}}]}`
}

func mustJSON(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func TestTurnClassifiesText(t *testing.T) {
	client, _ := newFakeProvider(t, http.StatusOK, textReply("The fare is 1200 rupees"))

	result := client.Turn(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "fare?"},
	}, nil)

	text, ok := result.(llm.TextResult)
	if !ok {
		t.Fatalf("expected TextResult, got %T", result)
	}
	if text.Text != "The fare is 1200 rupees" {
		t.Errorf("unexpected text: %q", text.Text)
	}
}

func TestTurnNullContentDefaultsToEmpty(t *testing.T) {
	client, _ := newFakeProvider(t, http.StatusOK, `{"choices":[{"message":{"content":null}}]}`)

	result := client.Turn(context.Background(), nil, nil)

	text, ok := result.(llm.TextResult)
	if !ok {
		t.Fatalf("expected TextResult, got %T", result)
	}
	if text.Text != "" {
		t.Errorf("expected empty text, got %q", text.Text)
	}
}

func TestTurnClassifiesToolCalls(t *testing.T) {
	reply := `{"choices":[{"message":{"content":null,"tool_calls":[
		{"id":"call_1","type":"function","function":{"name":"get_fare","arguments":"{\"train\":\"12345\"}"}},
		{"id":"call_2","type":"function","function":{"name":"pnr_status","arguments":"{\"pnr\":\"861234\"}"}}
	]}}]}`
	client, _ := newFakeProvider(t, http.StatusOK, reply)

	result := client.Turn(context.Background(), nil, []llm.ToolDefinition{{Name: "get_fare"}})

	calls, ok := result.(llm.ToolCallsResult)
	if !ok {
		t.Fatalf("expected ToolCallsResult, got %T", result)
	}
	if len(calls.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls.ToolCalls))
	}
	first := calls.ToolCalls[0]
	if first.ID != "call_1" || first.Name != "get_fare" {
		t.Errorf("unexpected first call: %+v", first)
	}
	if first.Arguments["train"] != "12345" {
		t.Errorf("unexpected arguments: %v", first.Arguments)
	}
	if calls.ToolCalls[1].Name != "pnr_status" {
		t.Errorf("tool call order not preserved: %+v", calls.ToolCalls[1])
	}
}

func TestTurnMalformedArgumentsBecomeEmpty(t *testing.T) {
	reply := `{"choices":[{"message":{"tool_calls":[
		{"id":"call_1","type":"function","function":{"name":"get_fare","arguments":"{not json"}}
	]}}]}`
	client, _ := newFakeProvider(t, http.StatusOK, reply)

	result := client.Turn(context.Background(), nil, nil)

	calls, ok := result.(llm.ToolCallsResult)
	if !ok {
		t.Fatalf("expected ToolCallsResult, got %T", result)
	}
	if len(calls.ToolCalls[0].Arguments) != 0 {
		t.Errorf("expected empty arguments, got %v", calls.ToolCalls[0].Arguments)
	}
}

func TestTurnGeneratesMissingCallID(t *testing.T) {
	reply := `{"choices":[{"message":{"tool_calls":[
		{"type":"function","function":{"name":"get_fare","arguments":"{}"}}
	]}}]}`
	client, _ := newFakeProvider(t, http.StatusOK, reply)

	result := client.Turn(context.Background(), nil, nil)

	calls := result.(llm.ToolCallsResult)
	if calls.ToolCalls[0].ID == "" {
		t.Error("expected a generated id for a call without one")
	}
}

func TestTurnOmitsToolsWhenCatalogueEmpty(t *testing.T) {
	client, captured := newFakeProvider(t, http.StatusOK, textReply("hi"))

	client.Turn(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)

	var body map[string]interface{}
	if err := json.Unmarshal(*captured, &body); err != nil {
		t.Fatalf("failed to parse captured body: %v", err)
	}
	if _, present := body["tools"]; present {
		t.Error("tools must be absent when no catalogue is offered")
	}
	if _, present := body["tool_choice"]; present {
		t.Error("tool_choice must be absent when no catalogue is offered")
	}
}

func TestTurnTranslatesConversation(t *testing.T) {
	client, captured := newFakeProvider(t, http.StatusOK, textReply("done"))

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "fare from NDLS to BCT?"},
		{Role: llm.RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_fare", Arguments: map[string]interface{}{"train": "12951"}},
		}},
		{Role: llm.RoleTool, Content: "1200", ToolCallID: "call_1"},
	}

	client.Turn(context.Background(), history, []llm.ToolDefinition{
		{Name: "get_fare"},
		{Name: "pnr_status", Description: "Check PNR status", InputSchema: map[string]interface{}{"type": "object"}},
	})

	var body struct {
		Messages []struct {
			Role       string `json:"role"`
			Content    string `json:"content"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name        string                 `json:"name"`
				Description string                 `json:"description"`
				Parameters  map[string]interface{} `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
		ToolChoice string `json:"tool_choice"`
	}
	if err := json.Unmarshal(*captured, &body); err != nil {
		t.Fatalf("failed to parse captured body: %v", err)
	}

	if len(body.Messages) != 4 {
		t.Fatalf("expected system + 3 history messages, got %d", len(body.Messages))
	}
	if body.Messages[0].Role != "system" || body.Messages[0].Content == "" {
		t.Errorf("first message must be the system instruction, got %+v", body.Messages[0])
	}

	assistant := body.Messages[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls not re-encoded: %+v", assistant)
	}
	tc := assistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" || tc.Function.Name != "get_fare" {
		t.Errorf("unexpected re-encoded call: %+v", tc)
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments are not a JSON blob: %v", err)
	}
	if args["train"] != "12951" {
		t.Errorf("unexpected arguments: %v", args)
	}

	toolMsg := body.Messages[3]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Content != "1200" {
		t.Errorf("tool message not preserved: %+v", toolMsg)
	}

	if body.ToolChoice != "auto" {
		t.Errorf("expected tool_choice auto, got %q", body.ToolChoice)
	}
	if len(body.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(body.Tools))
	}
	bare := body.Tools[0].Function
	if bare.Description != "get_fare" {
		t.Errorf("description must fall back to the tool name, got %q", bare.Description)
	}
	if bare.Parameters["type"] != "object" {
		t.Errorf("parameters must fall back to an empty object schema, got %v", bare.Parameters)
	}
}

func TestTurnClassifiesProviderFailure(t *testing.T) {
	client, _ := newFakeProvider(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`)

	result := client.Turn(context.Background(), nil, nil)

	errResult, ok := result.(llm.ErrorResult)
	if !ok {
		t.Fatalf("expected ErrorResult, got %T", result)
	}
	if errResult.Cause == nil {
		t.Error("expected a cause on provider failure")
	}
}

func TestTurnClassifiesTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient("test-key", "gpt-4o-mini")
	client.baseURL = server.URL
	server.Close()

	result := client.Turn(context.Background(), nil, nil)

	if _, ok := result.(llm.ErrorResult); !ok {
		t.Fatalf("expected ErrorResult, got %T", result)
	}
}

func TestTurnClassifiesMalformedEnvelope(t *testing.T) {
	client, _ := newFakeProvider(t, http.StatusOK, `{"choices":[]}`)

	result := client.Turn(context.Background(), nil, nil)

	if _, ok := result.(llm.ErrorResult); !ok {
		t.Fatalf("expected ErrorResult for empty choices, got %T", result)
	}
}
