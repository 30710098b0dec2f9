package dedalus_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mdwillman/dedalus/pkg/dedalus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingReader serves its data, then fails every subsequent read.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}

	return 0, r.err
}

func sseBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func TestStream_Recv(t *testing.T) {
	s := dedalus.NewStream(sseBody(
		`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"Sun"}}]}`,
		``,
		`: keep-alive comment`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"ny"}}]}`,
		`data: not-json`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
	))
	defer func() { _ = s.Close() }()

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Sun", chunk.Choices[0].Delta.Content)
	assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)

	chunk, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ny", chunk.Choices[0].Delta.Content)

	chunk, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "stop", chunk.Choices[0].FinishReason)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 5, chunk.Usage.TotalTokens)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)

	// Recv after EOF stays at EOF.
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_EndsWithoutDoneMarker(t *testing.T) {
	s := dedalus.NewStream(sseBody(
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"hi"}}]}`,
	))

	_, err := s.Recv()
	require.NoError(t, err)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_ReadErrorSurfaces(t *testing.T) {
	s := dedalus.NewStream(io.NopCloser(&failingReader{
		data: []byte("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Sun\"}}]}\n"),
		err:  errors.New("connection reset"),
	}))

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Sun", chunk.Choices[0].Delta.Content)

	_, err = s.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "stream read")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestStream_CancelledMidStream(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := c.StreamChatCompletion(ctx, dedalus.ChatRequest{
		Model:    "openai/gpt-5-mini",
		Messages: []dedalus.Message{dedalus.UserMessage("hi")},
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hi", chunk.Choices[0].Delta.Content)

	cancel()

	_, err = s.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestStream_ToolCallDeltas(t *testing.T) {
	s := dedalus.NewStream(sseBody(
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_forecast","arguments":""}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"lat\":40.7128}"}}]}}]}`,
		`data: [DONE]`,
	))

	chunk, err := s.Recv()
	require.NoError(t, err)
	tc := chunk.Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "get_forecast", tc.Function.Name)

	chunk, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"lat":40.7128}`, chunk.Choices[0].Delta.ToolCalls[0].Function.Arguments)
}

func TestStreamChatCompletion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		req := readBody(t, r)
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hello\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := c.StreamChatCompletion(context.Background(), dedalus.ChatRequest{
		Model:    "openai/gpt-5-mini",
		Messages: []dedalus.Message{dedalus.UserMessage("hi")},
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", chunk.Choices[0].Delta.Content)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamChatCompletion_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("busy"))
	})

	_, err := c.StreamChatCompletion(context.Background(), dedalus.ChatRequest{
		Model:    "openai/gpt-5-mini",
		Messages: []dedalus.Message{dedalus.UserMessage("hi")},
	})
	require.Error(t, err)

	var rle *dedalus.RateLimitError
	assert.ErrorAs(t, err, &rle)
}
