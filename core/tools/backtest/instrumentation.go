package backtest

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/fintalk-ai/fintalk-core/core/tools/backtest"

var tracer = otel.Tracer(scopeName)
