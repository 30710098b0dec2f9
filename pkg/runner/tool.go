package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mdwillman/dedalus/pkg/dedalus"
)

// Handler executes a tool call. Input is the raw JSON arguments from the
// model; the returned string is fed back to the model as the tool result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a locally-executed tool the model can call during a run.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Def returns the tool's wire declaration for a completion request.
func (t Tool) Def() dedalus.ToolDef {
	schema := t.InputSchema
	if schema == nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return dedalus.ToolDef{
		Type: "function",
		Function: dedalus.FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		},
	}
}

// ToolSet holds the tools available to a run and dispatches calls to them.
type ToolSet struct {
	tools map[string]Tool
}

// NewToolSet creates a ToolSet with the given tools. Later tools replace
// earlier ones with the same name.
func NewToolSet(tools ...Tool) *ToolSet {
	ts := &ToolSet{tools: make(map[string]Tool, len(tools))}
	ts.Register(tools...)

	return ts
}

// Register adds tools to the set, replacing any with the same name.
func (ts *ToolSet) Register(tools ...Tool) {
	for _, t := range tools {
		ts.tools[t.Name] = t
	}
}

// Get returns a tool by name and whether it was found.
func (ts *ToolSet) Get(name string) (Tool, bool) {
	t, ok := ts.tools[name]
	return t, ok
}

// Defs returns wire declarations for every tool in the set.
func (ts *ToolSet) Defs() []dedalus.ToolDef {
	defs := make([]dedalus.ToolDef, 0, len(ts.tools))
	for _, t := range ts.tools {
		defs = append(defs, t.Def())
	}

	return defs
}

// Call executes a tool call and returns the tool-role message to append to
// the conversation. Unknown tools and handler errors become error text in the
// message rather than Go errors, so the model sees the failure and can react.
func (ts *ToolSet) Call(ctx context.Context, tc dedalus.ToolCall) dedalus.Message {
	t, ok := ts.tools[tc.Function.Name]
	if !ok {
		return dedalus.ToolMessage(tc.ID, fmt.Sprintf("tool not found: %s", tc.Function.Name))
	}

	args := tc.Function.Arguments
	if args == "" {
		args = "{}"
	}

	result, err := t.Handler(ctx, json.RawMessage(args))
	if err != nil {
		return dedalus.ToolMessage(tc.ID, fmt.Sprintf("tool error: %s", err.Error()))
	}

	return dedalus.ToolMessage(tc.ID, result)
}
