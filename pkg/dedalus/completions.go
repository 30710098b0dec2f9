package dedalus

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	completionsPath = "/v1/chat/completions"
	modelsPath      = "/v1/models"
)

// Message roles used in completion requests and responses.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons reported on choices.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// --- request types ---

// Message is one turn in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage returns a system-role message with the given text.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage returns a user-role message with the given text.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// ToolMessage returns a tool-role message carrying a tool result.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolCall is an assistant's request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its raw JSON arguments.
// Arguments stays a string to avoid unnecessary deserialization.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef declares a locally-executed tool in a completion request.
type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a tool's name, purpose, and input schema.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the body of a chat completion call. MCPServers lists hosted
// MCP server slugs (e.g. "mdwillman/avalogica-weather-mcp"); the service
// connects to those servers and runs their tools without any client round
// trips. Tools declares locally-executed tools the caller will run itself.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MCPServers  []string  `json:"mcp_servers,omitempty"`
	Tools       []ToolDef `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// --- response types ---

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage count into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Choice is one candidate completion.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is a non-streaming completion result.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// CreateChatCompletion sends a non-streaming completion request.
// For streaming use StreamChatCompletion.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false

	var resp ChatResponse
	if err := c.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return nil, fmt.Errorf("dedalus: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("dedalus: empty choices in response")
	}

	return &resp, nil
}

// Model describes one model available to the account.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels returns the models the account can route requests to.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var resp modelsResponse
	if err := c.GetJSON(ctx, modelsPath, &resp); err != nil {
		return nil, fmt.Errorf("dedalus: %w", err)
	}

	return resp.Data, nil
}
