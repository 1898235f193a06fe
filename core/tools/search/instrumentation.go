package search

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/fintalk-ai/fintalk-core/core/tools/search"

var tracer = otel.Tracer(scopeName)
