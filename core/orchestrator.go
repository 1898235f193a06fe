// Package orchestration runs one chat turn end to end: it routes the user
// message to a tool mode, streams the completion, reassembles tool calls,
// cuts text into sentences for speech synthesis, and multiplexes everything
// onto a single ordered event stream.
package orchestration

import (
	"context"

	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/texttospeech"
	"github.com/fintalk-ai/fintalk-core/core/tools"
	"github.com/fintalk-ai/fintalk-core/internal/retry"
)

// CompletionSource prepares a streamed completion over the conversation
// history. The request must not be sent until the stream is iterated.
type CompletionSource interface {
	PromptWithStream(instructions string, history []llms.Message, tools []llms.Tool) llms.Stream
}

// CompletionSourceFunc adapts a function to a CompletionSource.
type CompletionSourceFunc func(instructions string, history []llms.Message, tools []llms.Tool) llms.Stream

func (f CompletionSourceFunc) PromptWithStream(instructions string, history []llms.Message, tools []llms.Tool) llms.Stream {
	return f(instructions, history, tools)
}

// Classifier scores how strongly a message expresses one intent, in [0,1].
type Classifier interface {
	Score(ctx context.Context, message string) (float64, error)
}

// Orchestrator holds the collaborators shared by all turns. Per-turn state
// lives in the pipeline a RunTurn call creates, so concurrent turns do not
// share anything mutable.
type Orchestrator struct {
	source       CompletionSource
	synthesizer  texttospeech.Synthesizer
	instructions string

	backtestClassifier Classifier
	searchClassifier   Classifier
	backtestThreshold  float64
	searchThreshold    float64
	backtestTools      *tools.Registry
	searchTools        *tools.Registry

	segmentThreshold int
	retryPolicy      retry.Policy
}

type Option func(*Orchestrator)

// WithSynthesizer enables speech synthesis for completed sentences. Without
// it the turn streams text only.
func WithSynthesizer(synthesizer texttospeech.Synthesizer) Option {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithInstructions sets the system instructions prepended to every turn.
func WithInstructions(instructions string) Option {
	return func(o *Orchestrator) { o.instructions = instructions }
}

// WithSearch binds the search intent classifier and the tools offered to the
// model when a turn routes to search mode.
func WithSearch(classifier Classifier, searchTools ...tools.Tool) Option {
	return func(o *Orchestrator) {
		o.searchClassifier = classifier
		o.searchTools = tools.NewRegistry(searchTools...)
	}
}

// WithBacktest binds the backtest intent classifier and the quant tools
// offered to the model when a turn routes to backtest mode.
func WithBacktest(classifier Classifier, quantTools ...tools.Tool) Option {
	return func(o *Orchestrator) {
		o.backtestClassifier = classifier
		o.backtestTools = tools.NewRegistry(quantTools...)
	}
}

// WithThresholds overrides the relevance thresholds for tool routing.
func WithThresholds(backtest, search float64) Option {
	return func(o *Orchestrator) {
		o.backtestThreshold = backtest
		o.searchThreshold = search
	}
}

// WithSegmentThreshold overrides how much unterminated text accumulates
// before it is cut for synthesis anyway.
func WithSegmentThreshold(characters int) Option {
	return func(o *Orchestrator) { o.segmentThreshold = characters }
}

// WithRetryPolicy overrides the retry policy applied to each sentence's
// synthesis call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *Orchestrator) { o.retryPolicy = policy }
}

func NewOrchestrator(source CompletionSource, opts ...Option) *Orchestrator {
	orchestrator := &Orchestrator{
		source:            source,
		backtestThreshold: DefaultBacktestThreshold,
		searchThreshold:   DefaultSearchThreshold,
		segmentThreshold:  defaultSegmentThreshold,
		retryPolicy:       retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}
