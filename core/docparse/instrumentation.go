package docparse

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/fintalk-ai/fintalk-core/core/docparse"

var tracer = otel.Tracer(scopeName)
