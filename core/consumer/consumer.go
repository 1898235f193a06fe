// Package consumer is the client-side half of the turn stream: it demuxes the
// newline-delimited event records a producer emits, rebuilds display state,
// and plays synthesized audio strictly in arrival order.
package consumer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/core/events"
)

const (
	// defaultToolIndicatorExpiry bounds how long a "tool running" indicator
	// survives without a result arriving.
	defaultToolIndicatorExpiry = 10 * time.Second

	// maxRecordSize bounds one wire record; audio segments dominate and
	// arrive base64-encoded.
	maxRecordSize = 16 * 1024 * 1024
)

// Consumer reads one turn stream at a time. Starting a new turn abandons the
// in-flight one: the read loop stops and the playback queue is flushed.
type Consumer struct {
	sink            AudioSink
	indicatorExpiry time.Duration
	onRelease       func(audio []byte)

	state *displayState

	mu     sync.Mutex
	cancel context.CancelFunc
	queue  *playbackQueue
}

type Option func(*Consumer)

// WithAudioSink enables audio playback. Without a sink audio segments are
// released unplayed.
func WithAudioSink(sink AudioSink) Option {
	return func(c *Consumer) { c.sink = sink }
}

// WithToolIndicatorExpiry overrides the tool indicator auto-clear timeout.
func WithToolIndicatorExpiry(expiry time.Duration) Option {
	return func(c *Consumer) { c.indicatorExpiry = expiry }
}

// WithReleaseHook observes every clip release, exactly once per clip.
func WithReleaseHook(onRelease func(audio []byte)) Option {
	return func(c *Consumer) { c.onRelease = onRelease }
}

func New(opts ...Option) *Consumer {
	consumer := &Consumer{
		indicatorExpiry: defaultToolIndicatorExpiry,
		state:           newDisplayState(),
	}
	for _, opt := range opts {
		opt(consumer)
	}
	return consumer
}

// Run reads the stream until the done event, end of input, or cancellation.
// Malformed records are skipped, not fatal. The call returns only after the
// queued audio has finished playing or been flushed.
func (c *Consumer) Run(ctx context.Context, stream io.Reader) error {
	c.Abandon()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := newPlaybackQueue(c.onRelease)
	c.mu.Lock()
	c.cancel = cancel
	c.queue = queue
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "consume turn stream")
	defer span.End()

	c.state.BeginTurn()

	playbackDone := make(chan struct{})
	go func() {
		defer close(playbackDone)
		c.playClips(ctx, queue)
	}()
	defer func() {
		queue.Close()
		<-playbackDone
	}()

	records, skipped := 0, 0
	defer func() {
		span.SetAttributes(
			attribute.Int("stream.records", records),
			attribute.Int("stream.records_skipped", skipped),
		)
	}()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		event, err := events.DecodeRecord(line)
		if err != nil {
			skipped++
			logger.WarnContext(ctx, "skipping malformed record", "error", err)
			continue
		}
		records++

		if done := c.apply(event, queue); done {
			return nil
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read turn stream: %w", err)
	}
	return nil
}

// apply folds one event into the display state and reports whether the
// stream is finished.
func (c *Consumer) apply(event events.Event, queue *playbackQueue) bool {
	switch event := event.(type) {
	case events.TextDelta:
		c.state.AppendText(event.Content)
	case events.SearchResult:
		c.state.AppendText(event.Text)
		if len(event.Sources) > 0 {
			c.state.ReplaceSources(event.Sources)
		}
	case events.Sources:
		c.state.ReplaceSources(event.Items)
	case events.ToolInvoked:
		c.state.ShowToolIndicator(event.Tool, c.indicatorExpiry)
	case events.GraphData:
		c.state.ReplaceGraph(event)
	case events.AudioSegment:
		queue.Enqueue(event.Audio)
	case events.Error:
		c.state.AppendError(event.Message)
	case events.Done:
		c.state.MarkDone()
		return true
	default:
		logger.Warn("skipping event outside the display contract", "kind", event.Kind())
	}
	return false
}

func (c *Consumer) playClips(ctx context.Context, queue *playbackQueue) {
	for next := range queue.Clips {
		if c.sink != nil && ctx.Err() == nil {
			if err := c.sink.Play(ctx, next.audio); err != nil {
				logger.WarnContext(ctx, "skipping clip that failed to play", "error", err)
			}
		}
		queue.release(next)
	}
}

// Abandon discards the in-flight turn, if any: the read loop is cancelled and
// the playback queue flushed. Display state keeps whatever already arrived.
func (c *Consumer) Abandon() {
	c.mu.Lock()
	cancel, queue := c.cancel, c.queue
	c.cancel, c.queue = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queue != nil {
		queue.Flush()
	}
}

// State returns a copy of the current display state.
func (c *Consumer) State() Snapshot {
	return c.state.Snapshot()
}
