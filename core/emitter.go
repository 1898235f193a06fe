package orchestration

import (
	"fmt"
	"sync"

	"github.com/fintalk-ai/fintalk-core/core/events"
)

// EmitFunc receives one event at a time, in final stream order. Returning an
// error means the transport is gone and the turn should wind down.
type EmitFunc func(events.Event) error

// eventEmitter serializes event delivery from the generation and speech
// workers onto one ordered stream. Once Done has been sent nothing else goes
// out, and Done itself goes out exactly once.
type eventEmitter struct {
	mu       sync.Mutex
	emit     EmitFunc
	doneSent bool
	failed   bool
}

func newEventEmitter(emit EmitFunc) *eventEmitter {
	return &eventEmitter{emit: emit}
}

func (e *eventEmitter) Emit(event events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doneSent {
		return fmt.Errorf("stream already closed")
	}
	if e.failed {
		return fmt.Errorf("stream transport failed")
	}

	if err := e.emit(event); err != nil {
		e.failed = true
		return fmt.Errorf("failed to emit %s event: %w", event.Kind(), err)
	}
	return nil
}

// Close emits the terminal done event, preceded by an error event when the
// turn failed. Safe to call more than once.
func (e *eventEmitter) Close(turnErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doneSent || e.failed {
		e.doneSent = true
		return
	}

	if turnErr != nil {
		if err := e.emit(events.NewError(turnErr.Error())); err != nil {
			e.failed = true
			e.doneSent = true
			return
		}
	}

	if err := e.emit(events.NewDone()); err != nil {
		e.failed = true
	}
	e.doneSent = true
}
