package runner

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/mdwillman/dedalus/pkg/dedalus"
)

// DeltaFunc receives each text fragment as it arrives from a stream.
type DeltaFunc func(delta string)

// RunStream is the streaming variant of Run. fn is invoked for every text
// delta (it may be nil); tool-call turns stream too, but only their text
// reaches fn. The assembled Result is returned once the model stops calling
// tools.
func (r *Runner) RunStream(ctx context.Context, req Request, fn DeltaFunc) (*Result, error) {
	st := newRunState(req)

	for turn := 0; turn < st.maxTurns; turn++ {
		chatReq := st.chatRequest()
		chatReq.Stream = true

		stream, err := r.client.StreamChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, err
		}

		reply, usage, err := collectStream(stream, fn)
		_ = stream.Close()
		if err != nil {
			return nil, err
		}

		st.usage.Add(usage)
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

// collectStream drains one completion stream into an assistant message,
// assembling tool calls from their indexed fragments and forwarding text
// deltas to fn.
func collectStream(stream *dedalus.Stream, fn DeltaFunc) (dedalus.Message, dedalus.Usage, error) {
	var (
		text  strings.Builder
		calls = make(map[int]*dedalus.ToolCall)
		usage dedalus.Usage
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return dedalus.Message{}, usage, err
		}

		if chunk.Usage != nil {
			usage.Add(*chunk.Usage)
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if fn != nil {
				fn(delta.Content)
			}
		}

		for _, tcd := range delta.ToolCalls {
			tc, ok := calls[tcd.Index]
			if !ok {
				tc = &dedalus.ToolCall{}
				calls[tcd.Index] = tc
			}

			if tcd.ID != "" {
				tc.ID = tcd.ID
			}
			if tcd.Type != "" {
				tc.Type = tcd.Type
			}
			if tcd.Function.Name != "" {
				tc.Function.Name = tcd.Function.Name
			}
			tc.Function.Arguments += tcd.Function.Arguments
		}
	}

	reply := dedalus.Message{
		Role:    dedalus.RoleAssistant,
		Content: text.String(),
	}

	if len(calls) > 0 {
		indexes := make([]int, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)

		for _, i := range indexes {
			reply.ToolCalls = append(reply.ToolCalls, *calls[i])
		}
	}

	return reply, usage, nil
}
