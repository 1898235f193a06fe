package events

const (
	// KindDone identifies stream completion.
	KindDone Kind = "stream.done"
	// KindError identifies a failure surfaced to the user.
	KindError Kind = "stream.error"
)

// Done marks the end of the stream. Exactly one per stream, always last.
type Done struct{ Base }

// NewDone creates a done event.
func NewDone() Done {
	return Done{Base: NewBase(KindDone)}
}

// Error carries a user-visible failure message. When followed by Done the
// stream is considered gracefully closed despite the error.
type Error struct {
	Base
	Message string
}

// NewError creates an error event.
func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}
