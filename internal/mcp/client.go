package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nasirperwez/rail-chatbot-backend/internal/logging"
)

const (
	clientName    = "RailChatbotBackend"
	clientVersion = "1.0.0"

	sessionHeader = "Mcp-Session-Id"
)

// Client speaks JSON-RPC 2.0 over HTTP to a single remote tool server,
// hiding the handshake and session bookkeeping from callers. A Client is
// safe for concurrent use; a redundant concurrent Initialize may perform a
// duplicate handshake but converges to the same state.
type Client struct {
	serverURL       string
	apiHost         string
	apiKey          string
	protocolVersion string
	httpClient      *http.Client

	// requestID seeds JSON-RPC ids. Strictly increasing from 1, never
	// reused within a session.
	requestID atomic.Int64

	mu          sync.Mutex
	initialized bool
	sessionID   string
	tools       []Tool
}

// NewClient creates a tool-server client. No network traffic happens until
// the first Initialize.
func NewClient(serverURL, apiHost, apiKey, protocolVersion string) *Client {
	return &Client{
		serverURL:       serverURL,
		apiHost:         apiHost,
		apiKey:          apiKey,
		protocolVersion: protocolVersion,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Initialize performs the handshake with the tool server. It is idempotent:
// a second call on an initialized client is a no-op with no traffic.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		logging.Debug("MCP client already initialized")
		return nil
	}
	c.mu.Unlock()

	params := map[string]interface{}{
		"protocolVersion": c.protocolVersion,
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": clientVersion,
		},
	}

	_, sessionID, err := c.sendRequest(ctx, "initialize", params)
	if err != nil {
		return err
	}

	if sessionID != "" {
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
	}

	// The initialized notification is fire-and-forget: a transport failure
	// here does not fail the handshake.
	if err := c.sendNotification(ctx, "notifications/initialized"); err != nil {
		logging.Warn("Failed to send initialized notification: %v", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	logging.Info("MCP client initialized successfully")
	return nil
}

// ListTools returns the tool catalogue, fetching it from the server on the
// first call and serving the cached copy afterwards until Disconnect.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.tools) > 0 {
		cached := c.tools
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, _, err := c.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = payload.Tools
	c.mu.Unlock()

	logging.Info("Fetched %d tools", len(payload.Tools))
	return payload.Tools, nil
}

// CallTool invokes a tool on the server. Argument values are coerced to
// their textual representation first; the tool protocol accepts only
// string-typed arguments (nulls pass through untouched).
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*ToolResult, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"name":      name,
		"arguments": stringifyArguments(arguments),
	}

	logging.Info("Calling tool: %s with args: %v", name, arguments)

	result, _, err := c.sendRequest(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var payload ToolResult
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tools/call result: %w", err)
	}
	return &payload, nil
}

// IsConnected reports whether the handshake has completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Disconnect resets the session state and tool cache and releases idle HTTP
// connections. The next call re-runs the handshake.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.initialized = false
	c.sessionID = ""
	c.tools = nil
	c.mu.Unlock()
	c.httpClient.CloseIdleConnections()
}

func (c *Client) ensureInitialized(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	return c.Initialize(ctx)
}

// --- JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// sendRequest posts one JSON-RPC request and returns the raw result plus any
// session id the server handed back in the response headers. A JSON-RPC
// error envelope becomes a *ProtocolError.
func (c *Client) sendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, string, error) {
	body := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	logging.Debug("Sending MCP request: %s (id=%d)", method, body.ID)

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, "", fmt.Errorf("mcp request %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, "", fmt.Errorf("failed to decode mcp response for %s: %w", method, err)
	}

	if envelope.Error != nil {
		return nil, "", &ProtocolError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return envelope.Result, resp.Header.Get(sessionHeader), nil
}

// sendNotification posts a one-way JSON-RPC message. No reply is expected.
func (c *Client) sendNotification(ctx context.Context, method string) error {
	body := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, body rpcRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-host", c.apiHost)
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("MCP-Protocol-Version", c.protocolVersion)

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	return c.httpClient.Do(req)
}

// stringifyArguments coerces every non-null argument to a string. Booleans
// become "true"/"false" and numbers keep their shortest decimal form.
func stringifyArguments(arguments map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(arguments))
	for key, value := range arguments {
		if value == nil {
			out[key] = nil
			continue
		}
		switch v := value.(type) {
		case string:
			out[key] = v
		case bool:
			out[key] = strconv.FormatBool(v)
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
