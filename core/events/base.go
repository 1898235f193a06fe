package events

import "time"

// Kind discriminates the event variants a turn stream can carry.
type Kind string

// Event is one entry in a turn's ordered stream. Concrete events embed Base
// and add their payload fields.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind tag and creation time shared by every event. The
// timestamp records when the producer created the event, not when it was
// observed.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
