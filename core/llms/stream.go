package llms

import "context"

// Stream is a pending streamed completion. Chunks drives the request and
// yields typed chunks in provider emission order.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

// FinishReasonToolCalls is reported when the model stopped to invoke tools.
const FinishReasonToolCalls = "tool_calls"

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
