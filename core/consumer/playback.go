package consumer

import (
	"context"
	"sync"
)

// AudioSink plays one clip to completion before returning. Implementations
// wrap whatever audio backend the host application uses.
type AudioSink interface {
	Play(ctx context.Context, clip []byte) error
}

type clip struct {
	audio    []byte
	released bool
}

// playbackQueue holds synthesized clips for one turn in arrival order. A
// single playback worker drains it through Clips, which guarantees strict
// FIFO playback with no overlap. Every enqueued clip is released exactly
// once, whether it played or was flushed.
type playbackQueue struct {
	mu           sync.Mutex
	clips        []*clip
	consumed     int
	closed       bool
	flushed      bool
	updateSignal chan struct{}

	onRelease func(audio []byte)
}

func newPlaybackQueue(onRelease func(audio []byte)) *playbackQueue {
	return &playbackQueue{
		updateSignal: make(chan struct{}, 1),
		onRelease:    onRelease,
	}
}

func (q *playbackQueue) Enqueue(audio []byte) {
	q.mu.Lock()
	if q.flushed {
		q.mu.Unlock()
		q.releaseAudio(audio)
		return
	}
	q.clips = append(q.clips, &clip{audio: audio})
	q.mu.Unlock()
	q.signalUpdate()
}

// Close marks that no further clips will arrive. Clips iteration ends once
// the backlog has played out.
func (q *playbackQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalUpdate()
}

// Flush abandons the turn's remaining audio: every unplayed clip is released
// and iteration ends.
func (q *playbackQueue) Flush() {
	q.mu.Lock()
	q.flushed = true
	pending := q.clips[q.consumed:]
	q.consumed = len(q.clips)
	q.mu.Unlock()
	q.signalUpdate()

	for _, pendingClip := range pending {
		q.release(pendingClip)
	}
}

func (q *playbackQueue) Clips(yield func(*clip) bool) {
	for {
		q.mu.Lock()
		if q.flushed {
			q.mu.Unlock()
			return
		}

		if q.consumed < len(q.clips) {
			next := q.clips[q.consumed]
			q.consumed++
			q.mu.Unlock()
			if !yield(next) {
				return
			}
			continue
		}

		if q.closed {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *playbackQueue) release(released *clip) {
	q.mu.Lock()
	if released.released {
		q.mu.Unlock()
		return
	}
	released.released = true
	q.mu.Unlock()

	q.releaseAudio(released.audio)
}

func (q *playbackQueue) releaseAudio(audio []byte) {
	if q.onRelease != nil {
		q.onRelease(audio)
	}
}

func (q *playbackQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
