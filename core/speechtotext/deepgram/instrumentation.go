package deepgram

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/fintalk-ai/fintalk-core/core/speechtotext/deepgram"

var tracer = otel.Tracer(scopeName)
