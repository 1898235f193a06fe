package orchestration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/tools"
)

// turnPipeline is the per-turn state: the event emitter shared by both
// workers, the sentence segmenter fed by the generation side, and the segment
// buffer drained by the speech side.
type turnPipeline struct {
	orchestrator *Orchestrator
	registry     *tools.Registry
	history      []llms.Message

	emitter   *eventEmitter
	segmenter *sentenceSegmenter
	segments  *segmentBuffer
}

// generate drives the completion stream: text deltas go out immediately and
// feed the segmenter, tool-call fragments accumulate until the stream ends,
// then the completed calls execute. Any stream failure is fatal to the turn.
func (p *turnPipeline) generate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()
	defer p.segments.Complete()

	stream := p.orchestrator.source.PromptWithStream(p.orchestrator.instructions, p.history, p.registry.Declarations())
	accumulator := newToolCallAccumulator()

	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			err = fmt.Errorf("completion stream failed: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		switch chunk := chunk.(type) {
		case llms.StreamToolCallChunk:
			fragment := chunk.ToolCall()
			if accumulator.Add(fragment) {
				if err := p.emitter.Emit(events.NewToolInvoked(fragment.Name)); err != nil {
					return err
				}
			}
		case llms.StreamContentChunk:
			if err := p.emitText(chunk.Content()); err != nil {
				return err
			}
		}
	}

	if !accumulator.Empty() {
		if err := p.executeToolCalls(ctx, accumulator.Calls()); err != nil {
			return err
		}
	}

	if segment := p.segmenter.Flush(); segment != "" && p.orchestrator.synthesizer != nil {
		p.segments.AddSegment(segment)
	}
	return nil
}

// emitText sends one text delta and queues any sentences it completed.
func (p *turnPipeline) emitText(content string) error {
	if content == "" {
		return nil
	}
	if err := p.emitter.Emit(events.NewTextDelta(content)); err != nil {
		return err
	}
	p.queueSentences(content)
	return nil
}

func (p *turnPipeline) queueSentences(content string) {
	segments := p.segmenter.Append(content)
	if p.orchestrator.synthesizer == nil {
		return
	}
	for _, segment := range segments {
		p.segments.AddSegment(segment)
	}
}

// executeToolCalls dispatches each accumulated call exactly once. A failing
// tool is logged and its result silently omitted; only emit failures abort.
func (p *turnPipeline) executeToolCalls(ctx context.Context, calls []llms.ToolCall) error {
	for _, call := range calls {
		result := p.executeToolCall(ctx, call)
		if result == nil {
			continue
		}

		if result.Graph != nil {
			if err := p.emitter.Emit(*result.Graph); err != nil {
				return err
			}
		}

		switch {
		case result.Text != "" && len(result.Sources) > 0:
			if err := p.emitter.Emit(events.NewSearchResult(result.Text, result.Sources)); err != nil {
				return err
			}
			if err := p.emitter.Emit(events.NewSources(result.Sources)); err != nil {
				return err
			}
		case result.Text != "":
			if err := p.emitter.Emit(events.NewTextDelta(result.Text)); err != nil {
				return err
			}
		case len(result.Sources) > 0:
			if err := p.emitter.Emit(events.NewSources(result.Sources)); err != nil {
				return err
			}
		}

		if result.Text != "" {
			p.queueSentences(result.Text)
		}
	}
	return nil
}

func (p *turnPipeline) executeToolCall(ctx context.Context, call llms.ToolCall) *tools.Result {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	result, err := p.registry.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "tool execution failed, omitting its result", "tool", call.Name, "error", err)
		return nil
	}
	return result
}

// processSpeech drains completed sentences and synthesizes them one at a
// time, so audio segments go out in sentence order. A sentence whose
// synthesis exhausts its retries is skipped; its text already went out.
func (p *turnPipeline) processSpeech(ctx context.Context) error {
	if p.orchestrator.synthesizer == nil {
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.segments.Clear()
		case <-done:
		}
	}()

	ctx, span := tracer.Start(ctx, "synthesize response speech")
	defer span.End()

	for segment := range p.segments.Segments {
		audio, err := p.synthesizeSegment(ctx, segment)
		if err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "dropping audio for sentence", "error", err)
			continue
		}

		if err := p.emitter.Emit(events.NewAudioSegment(audio)); err != nil {
			return err
		}
	}
	return nil
}

func (p *turnPipeline) synthesizeSegment(ctx context.Context, segment string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize sentence")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(segment)))

	var audio []byte
	err := p.orchestrator.retryPolicy.Do(ctx, func(ctx context.Context) error {
		var err error
		audio, err = p.orchestrator.synthesizer.Synthesize(ctx, segment)
		return err
	})
	if err != nil {
		err = fmt.Errorf("failed to synthesize sentence: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return audio, nil
}
