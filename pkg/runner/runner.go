// Package runner submits natural-language requests to the Dedalus API and
// drives them to a final answer. Hosted MCP server slugs ride on the request
// and are executed by the service; local tools are executed here, in a loop
// that feeds tool results back to the model until it stops calling tools.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mdwillman/dedalus/pkg/dedalus"
)

// ErrMaxTurns is returned when the tool loop exceeds MaxTurns without the
// model producing a final answer.
var ErrMaxTurns = errors.New("runner: max turns reached")

// defaultMaxTurns bounds the tool loop when Request.MaxTurns is zero.
const defaultMaxTurns = 10

// Completions is the slice of the dedalus client the runner depends on.
type Completions interface {
	CreateChatCompletion(ctx context.Context, req dedalus.ChatRequest) (*dedalus.ChatResponse, error)
	StreamChatCompletion(ctx context.Context, req dedalus.ChatRequest) (*dedalus.Stream, error)
}

// Request describes one run.
type Request struct {
	Input       string   // Natural-language instruction.
	Model       string   // Model identifier (e.g. "openai/gpt-5-mini").
	MCPServers  []string // Hosted MCP server slugs, executed service-side.
	Tools       []Tool   // Locally-executed tools.
	System      string   // Optional system prompt.
	Stream      bool     // Use the streaming path even from Run.
	MaxTurns    int      // Tool loop limit (0 = default of 10).
	MaxTokens   int      // Per-completion token cap (0 = server default).
	Temperature *float64 // Sampling temperature (nil = server default).
}

// Result is the outcome of a run.
type Result struct {
	FinalOutput string            // Text of the final assistant message.
	Messages    []dedalus.Message // Full transcript, including tool turns.
	Usage       dedalus.Usage     // Aggregated across all completions.
}

// Runner executes requests against a Completions client.
type Runner struct {
	client Completions
}

// New creates a Runner backed by the given client.
func New(client Completions) *Runner {
	return &Runner{client: client}
}

// Run submits the request and loops over local tool calls until the model
// produces a final answer. Any failure propagates to the caller unchanged.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Stream {
		return r.RunStream(ctx, req, nil)
	}

	st := newRunState(req)

	for turn := 0; turn < st.maxTurns; turn++ {
		resp, err := r.client.CreateChatCompletion(ctx, st.chatRequest())
		if err != nil {
			return nil, err
		}

		st.usage.Add(resp.Usage)

		// dedalus.Client rejects empty choices itself; this covers other
		// Completions implementations.
		if len(resp.Choices) == 0 {
			return nil, errors.New("runner: response contained no choices")
		}

		reply := resp.Choices[0].Message
		st.messages = append(st.messages, reply)

		if len(reply.ToolCalls) == 0 {
			return st.result(reply.Content), nil
		}

		if err := st.callTools(ctx, reply.ToolCalls); err != nil {
			return nil, err
		}
	}

	return nil, ErrMaxTurns
}

// runState carries the evolving conversation across turns of a run.
type runState struct {
	req      Request
	tools    *ToolSet
	messages []dedalus.Message
	usage    dedalus.Usage
	maxTurns int
}

func newRunState(req Request) *runState {
	st := &runState{
		req:      req,
		tools:    NewToolSet(req.Tools...),
		maxTurns: req.MaxTurns,
	}

	if st.maxTurns <= 0 {
		st.maxTurns = defaultMaxTurns
	}

	if req.System != "" {
		st.messages = append(st.messages, dedalus.SystemMessage(req.System))
	}
	st.messages = append(st.messages, dedalus.UserMessage(req.Input))

	return st
}

// chatRequest builds the wire request for the current conversation state.
func (st *runState) chatRequest() dedalus.ChatRequest {
	return dedalus.ChatRequest{
		Model:       st.req.Model,
		Messages:    st.messages,
		MCPServers:  st.req.MCPServers,
		Tools:       st.tools.Defs(),
		MaxTokens:   st.req.MaxTokens,
		Temperature: st.req.Temperature,
	}
}

// callTools executes each call and appends its tool-role message. Tool
// failures are reported to the model, not the caller; only context
// cancellation aborts the run.
func (st *runState) callTools(ctx context.Context, calls []dedalus.ToolCall) error {
	for _, tc := range calls {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("runner: %w", err)
		}

		st.messages = append(st.messages, st.tools.Call(ctx, tc))
	}

	return nil
}

func (st *runState) result(finalOutput string) *Result {
	return &Result{
		FinalOutput: finalOutput,
		Messages:    st.messages,
		Usage:       st.usage,
	}
}
