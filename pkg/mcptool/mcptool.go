// Package mcptool connects to locally-run MCP servers and exposes their
// tools as runner tools, using the official MCP Go SDK. This complements the
// hosted MCP server slugs the service executes itself: tools bridged here run
// on the caller's machine.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mdwillman/dedalus/pkg/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is a live connection to one MCP server.
type Session struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

// Connect spawns an MCP server process and returns a connected session.
// The SDK handles initialization automatically during Connect.
func Connect(ctx context.Context, command string, args ...string) (*Session, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command is caller-provided by design
	}

	return connect(ctx, transport)
}

// ConnectSSE connects to an SSE-based MCP server at the given URL.
func ConnectSSE(ctx context.Context, url string) (*Session, error) {
	transport := &mcp.SSEClientTransport{Endpoint: url}

	return connect(ctx, transport)
}

// connect creates a Session over the given transport. Split out so tests can
// use InMemoryTransport.
func connect(ctx context.Context, transport mcp.Transport) (*Session, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "dedalus",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptool: connect: %w", err)
	}

	return &Session{client: client, session: session}, nil
}

// Tools fetches the server's tool list and returns runner tools whose
// handlers call back through this session.
func (s *Session) Tools(ctx context.Context) ([]runner.Tool, error) {
	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptool: list tools: %w", err)
	}

	tools := make([]runner.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		schema, err := json.Marshal(sdkTool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("mcptool: marshal schema for %q: %w", sdkTool.Name, err)
		}

		name := sdkTool.Name
		tools = append(tools, runner.Tool{
			Name:        name,
			Description: sdkTool.Description,
			InputSchema: schema,
			Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
				return s.CallTool(ctx, name, input)
			},
		})
	}

	return tools, nil
}

// CallTool calls a named tool on the server with the given arguments and
// returns the text content of the result.
func (s *Session) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcptool: unmarshal arguments: %w", err)
		}
	}

	result, err := s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcptool: call tool: %w", err)
	}

	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		return "", fmt.Errorf("mcptool: tool error: %s", text)
	}

	return text, nil
}

// Close terminates the session. The SDK tears down any spawned subprocess.
func (s *Session) Close() error {
	return s.session.Close()
}
