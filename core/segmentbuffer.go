package orchestration

import "sync"

// segmentBuffer queues completed sentences for the speech worker. The
// generation side appends without ever blocking; the speech worker drains
// through Segments, blocking only when the buffer is empty and not yet
// complete.
type segmentBuffer struct {
	mu               sync.Mutex
	segments         []string
	segmentsConsumed int
	complete         bool
	updateSignal     chan struct{}
	cleared          bool
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *segmentBuffer) AddSegment(segment string) {
	b.mu.Lock()
	b.segments = append(b.segments, segment)
	b.mu.Unlock()
	b.signalUpdate()
}

// Complete marks that no further segments will arrive. Segments iteration
// ends once the backlog is drained.
func (b *segmentBuffer) Complete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *segmentBuffer) Segments(yield func(string) bool) {
	for {
		b.mu.Lock()
		if b.cleared {
			b.mu.Unlock()
			return
		}

		if b.segmentsConsumed < len(b.segments) {
			segment := b.segments[b.segmentsConsumed]
			b.segmentsConsumed++
			b.mu.Unlock()
			if !yield(segment) {
				return
			}
			continue
		}

		if b.complete {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

// Clear drops the backlog and unblocks a waiting consumer.
func (b *segmentBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *segmentBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
