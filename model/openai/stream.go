package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
)

// streamAccumulator rebuilds the complete answer from chunk deltas. Tool
// calls arrive in fragments keyed by their index.
type streamAccumulator struct {
	id     string
	text   strings.Builder
	calls  map[int64]*core.FunctionCall
	finish string
	usage  *model.TokenUsage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{calls: map[int64]*core.FunctionCall{}}
}

// add folds a chunk in and returns the partial responses it produced.
func (a *streamAccumulator) add(chunk openai.ChatCompletionChunk) []model.Response {
	if a.id == "" {
		a.id = chunk.ID
	}

	if u := usage(chunk.Usage); u != nil {
		a.usage = u
	}

	var partials []model.Response

	for _, ch := range chunk.Choices {
		if ch.Delta.Content != "" {
			a.text.WriteString(ch.Delta.Content)
			partials = append(partials, a.partial(core.TextPart{Text: ch.Delta.Content}))
		}

		for _, tc := range ch.Delta.ToolCalls {
			call, ok := a.calls[tc.Index]
			if !ok {
				call = &core.FunctionCall{}
				a.calls[tc.Index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments

			partials = append(partials, a.partial(core.FunctionCallPart{FunctionCall: *call}))
		}

		if ch.FinishReason != "" {
			a.finish = ch.FinishReason
		}
	}

	return partials
}

func (a *streamAccumulator) partial(p core.Part) model.Response {
	return model.Response{
		ID:      a.id,
		Partial: true,
		Content: core.Content{Role: "assistant", Parts: []core.Part{p}},
	}
}

// final returns the aggregated response with tool calls in index order.
func (a *streamAccumulator) final() model.Response {
	parts := make([]core.Part, 0, len(a.calls)+1)
	if a.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: a.text.String()})
	}

	indices := make([]int64, 0, len(a.calls))
	for i := range a.calls {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, i := range indices {
		parts = append(parts, core.FunctionCallPart{FunctionCall: *a.calls[i]})
	}

	return model.Response{
		ID:           a.id,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: a.finish,
		Usage:        a.usage,
	}
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := newStreamAccumulator()

	for stream.Next() {
		for _, resp := range acc.add(stream.Current()) {
			select {
			case out <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}

	if acc.finish == "" {
		return fmt.Errorf("openai: stream ended without a finish reason")
	}

	out <- acc.final()

	return nil
}
