package orchestration

import (
	"sort"

	"github.com/google/uuid"

	"github.com/fintalk-ai/fintalk-core/core/llms"
)

// toolCallAccumulator reassembles tool calls from streamed fragments. The
// provider splits one call across many deltas sharing a call index; the name
// and ID arrive on the first fragment, the argument JSON in pieces after it.
type toolCallAccumulator struct {
	calls map[int]*llms.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: map[int]*llms.ToolCall{}}
}

// Add folds one fragment in and reports whether it started a new call, i.e.
// the first fragment carrying the call's name.
func (a *toolCallAccumulator) Add(fragment llms.ToolCall) (started bool) {
	call, ok := a.calls[fragment.Index]
	if !ok {
		call = &llms.ToolCall{Index: fragment.Index}
		a.calls[fragment.Index] = call
	}

	if fragment.ID != "" {
		call.ID = fragment.ID
	}
	if fragment.Name != "" {
		started = call.Name == ""
		call.Name = fragment.Name
	}
	call.Arguments += fragment.Arguments

	return started
}

// Calls returns the accumulated calls in index order, assigning a fallback ID
// to any call the provider left without one.
func (a *toolCallAccumulator) Calls() []llms.ToolCall {
	indices := make([]int, 0, len(a.calls))
	for index := range a.calls {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	calls := make([]llms.ToolCall, 0, len(indices))
	for _, index := range indices {
		call := *a.calls[index]
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		calls = append(calls, call)
	}
	return calls
}

func (a *toolCallAccumulator) Empty() bool {
	return len(a.calls) == 0
}
