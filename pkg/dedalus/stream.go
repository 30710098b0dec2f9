package dedalus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxScannerBuffer sizes the SSE line scanner. Tool-call argument deltas can
// exceed bufio's default 64KB line limit.
const maxScannerBuffer = 1024 * 1024

const (
	streamDataPrefix = "data:"
	streamDoneMarker = "[DONE]"
)

// Delta is the incremental payload of a streaming choice.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a tool call under assembly. The first
// fragment for an index carries the ID and function name; later fragments
// append to the arguments.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// StreamChoice is one candidate within a stream chunk.
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamChunk is a single server-sent event in a completion stream.
// Usage, when present, arrives on the final chunk.
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Stream reads completion chunks from a server-sent event body.
// Recv returns chunks until the stream ends, then io.EOF.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// NewStream wraps an SSE body. StreamChatCompletion calls this internally;
// it is exported so fakes can feed canned streams to runner code in tests.
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, maxScannerBuffer), maxScannerBuffer)

	return &Stream{body: body, scanner: scanner}
}

// StreamChatCompletion sends a streaming completion request and returns a
// Stream of chunks. The caller must Close the stream when done.
func (c *Client) StreamChatCompletion(ctx context.Context, chatReq ChatRequest) (*Stream, error) {
	chatReq.Stream = true

	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("dedalus: marshal payload: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("dedalus: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dedalus: do request: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("dedalus: %w", err)
	}

	return NewStream(resp.Body), nil
}

// Recv returns the next chunk. It skips blank lines, SSE comments, and
// unparseable data lines. A "[DONE]" sentinel or body close ends the stream
// with io.EOF.
func (s *Stream) Recv() (*StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, streamDataPrefix) {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, streamDataPrefix))
		if data == streamDoneMarker {
			s.done = true
			return nil, io.EOF
		}
		if data == "" || data == "null" {
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("dedalus: stream read: %w", err)
	}

	s.done = true

	return nil, io.EOF
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
