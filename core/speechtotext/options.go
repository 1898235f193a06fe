// Package speechtotext defines the transcription contract used by the speech
// endpoint.
package speechtotext

import (
	"context"
	"io"
)

// Transcriber converts one recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, opts ...TranscriptionOption) (string, error)
}

type TranscriptionOptions struct {
	// MimeType describes the uploaded audio container, e.g. "audio/webm".
	MimeType string
	// Language hints the transcription language.
	Language string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithMimeType(mimeType string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.MimeType = mimeType }
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}
