package orchestrator

import (
	"context"

	"github.com/nasirperwez/rail-chatbot-backend/internal/llm"
	"github.com/nasirperwez/rail-chatbot-backend/internal/logging"
	"github.com/nasirperwez/rail-chatbot-backend/internal/mcp"
)

// maxToolIterations bounds the LLM/tool loop of a single run. It guards
// against a model that keeps calling tools without ever answering.
const maxToolIterations = 10

// ToolClient is the tool-server surface the orchestrator depends on.
// *mcp.Client satisfies it.
type ToolClient interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.ToolResult, error)
	Disconnect()
}

// Orchestrator drives the chat flow between user, LLM, and remote tools.
//
// Flow per run: emit thinking, fetch the tool catalogue, then loop sending
// the conversation to the LLM and executing any tool calls it requests,
// until the LLM produces a final text answer or the iteration cap is hit.
type Orchestrator struct {
	toolClient ToolClient
	llmClient  llm.Client
}

// New creates an orchestrator. One instance serves the whole process;
// concurrent runs share only the tool client's session and cache.
func New(toolClient ToolClient, llmClient llm.Client) *Orchestrator {
	return &Orchestrator{
		toolClient: toolClient,
		llmClient:  llmClient,
	}
}

// Process runs one orchestration for a user message on top of the supplied
// history. Events arrive on the returned channel in emission order; the
// channel is closed after the terminal event (done or error). The caller
// owns retention of history across calls. Cancelling ctx stops the run.
func (o *Orchestrator) Process(ctx context.Context, userMessage string, history []llm.Message) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, userMessage, history, events)
	}()
	return events
}

// Tools exposes the remote catalogue for the diagnostic endpoint,
// initializing the tool client on demand.
func (o *Orchestrator) Tools(ctx context.Context) ([]mcp.Tool, error) {
	if err := o.toolClient.Initialize(ctx); err != nil {
		return nil, err
	}
	return o.toolClient.ListTools(ctx)
}

// Close releases the tool-server session.
func (o *Orchestrator) Close() {
	o.toolClient.Disconnect()
}

func (o *Orchestrator) run(ctx context.Context, userMessage string, history []llm.Message, events chan<- Event) {
	// A run must always terminate its event stream cleanly, so anything
	// unexpected is caught here and converted into a single error event.
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Orchestrator panic: %v", r)
			emit(ctx, events, Event{Type: EventError, Text: "An internal error occurred. Please try again."})
		}
	}()

	if !emit(ctx, events, Event{Type: EventThinking, Text: "Analyzing your request..."}) {
		return
	}

	if err := o.toolClient.Initialize(ctx); err != nil {
		logging.Error("Tool server handshake failed: %v", err)
		emit(ctx, events, Event{Type: EventError, Text: "An error occurred: " + err.Error()})
		return
	}
	tools, err := o.toolClient.ListTools(ctx)
	if err != nil {
		logging.Error("Tool listing failed: %v", err)
		emit(ctx, events, Event{Type: EventError, Text: "An error occurred: " + err.Error()})
		return
	}
	logging.Info("Initialized with %d tools", len(tools))

	definitions := toDefinitions(tools)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	for iteration := 1; iteration <= maxToolIterations; iteration++ {
		logging.Debug("Tool calling iteration %d", iteration)

		switch result := o.llmClient.Turn(ctx, messages, definitions).(type) {
		case llm.ErrorResult:
			emit(ctx, events, Event{Type: EventError, Text: "AI error: " + result.Message})
			return

		case llm.TextResult:
			if !emit(ctx, events, Event{Type: EventResponse, Text: result.Text}) {
				return
			}
			emit(ctx, events, Event{Type: EventDone})
			return

		case llm.ToolCallsResult:
			// The assistant turn recording the calls must precede the
			// tool-result turns so replayed history stays well-formed.
			messages = append(messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   "",
				ToolCalls: result.ToolCalls,
			})

			// Calls run sequentially in the order the model produced
			// them; a later call may depend on an earlier result.
			for _, call := range result.ToolCalls {
				if !emit(ctx, events, Event{Type: EventToolStart, Name: call.Name, Args: call.Arguments}) {
					return
				}

				resultText, isError := o.executeCall(ctx, call)

				eventType := EventToolComplete
				if isError {
					eventType = EventToolError
				}
				if !emit(ctx, events, Event{Type: eventType, Name: call.Name, Result: resultText}) {
					return
				}

				// The model always receives a turn for every call it
				// made, error or not.
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    resultText,
					ToolCallID: call.ID,
				})
			}
		}
	}

	emit(ctx, events, Event{Type: EventError, Text: "Maximum tool iterations reached. Please try again."})
}

// executeCall invokes one tool and flattens the outcome into the text that
// feeds back into the conversation.
func (o *Orchestrator) executeCall(ctx context.Context, call llm.ToolCall) (string, bool) {
	result, err := o.toolClient.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		message := "Tool execution failed: " + err.Error()
		logging.Error("%s", message)
		return message, true
	}
	return result.Text(), result.IsError
}

// emit delivers an event unless the run has been cancelled. It reports
// whether the run should continue.
func emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func toDefinitions(tools []mcp.Tool) []llm.ToolDefinition {
	definitions := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return definitions
}
