// Package texttospeech defines the speech synthesis contract used by the
// turn pipeline and the speech endpoint.
package texttospeech

import "context"

// Synthesizer converts one sentence-level unit of text into encoded audio.
// Implementations are request/response; serialization of calls is the
// caller's responsibility.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// MaxTextLength bounds a single synthesis request, in characters. Longer
// inputs must be rejected before reaching the vendor.
const MaxTextLength = 5000
