package orchestrator

// EventType tags an event emitted during an orchestration run.
type EventType string

const (
	EventThinking     EventType = "thinking"
	EventToolStart    EventType = "tool_start"
	EventToolComplete EventType = "tool_complete"
	EventToolError    EventType = "tool_error"
	EventResponse     EventType = "response"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// Event is one externally observable step of a run. Only the fields
// relevant to the event type are set; the rest are omitted on the wire.
type Event struct {
	Type   EventType              `json:"type"`
	Text   string                 `json:"text,omitempty"`
	Name   string                 `json:"name,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Result string                 `json:"result,omitempty"`
}
