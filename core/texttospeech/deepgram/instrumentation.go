package deepgram

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/fintalk-ai/fintalk-core/core/texttospeech/deepgram"

var tracer = otel.Tracer(scopeName)
