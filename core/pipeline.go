package orchestration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/fintalk-ai/fintalk-core/core/llms"
)

var (
	ErrNoMessages  = errors.New("at least one message is required")
	ErrLastNotUser = errors.New("last message must be from the user")
)

// RunTurn runs one conversation turn, emitting the ordered event stream
// through emit. It returns once the terminal done event has been emitted (or
// the transport failed). Validation errors are returned before any event goes
// out, so callers can map them to a client error instead of a stream.
func (o *Orchestrator) RunTurn(ctx context.Context, messages []llms.Message, emit EmitFunc) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	last := messages[len(messages)-1]
	if last.Role != llms.RoleUser {
		return ErrLastNotUser
	}

	ctx, span := tracer.Start(ctx, "run turn")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", uuid.NewString()))

	mode, registry := o.route(ctx, last.Content)

	pipeline := &turnPipeline{
		orchestrator: o,
		registry:     registry,
		history:      messages,
		emitter:      newEventEmitter(emit),
		segmenter:    newSentenceSegmenter(o.segmentThreshold),
		segments:     newSegmentBuffer(),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return pipeline.generate(groupCtx) })
	group.Go(func() error { return pipeline.processSpeech(groupCtx) })

	turnErr := group.Wait()
	if turnErr != nil {
		span.RecordError(turnErr)
		span.SetStatus(codes.Error, turnErr.Error())
	}
	span.SetAttributes(attribute.String("turn.mode", mode.String()))

	pipeline.emitter.Close(turnErr)
	return turnErr
}
