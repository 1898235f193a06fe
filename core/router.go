package orchestration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/core/tools"
)

// Default relevance thresholds. Backtest intent needs a stronger signal than
// search because a false positive binds a slow quant tool to the turn.
const (
	DefaultBacktestThreshold = 0.9
	DefaultSearchThreshold   = 0.7
)

type turnMode int

const (
	modeChat turnMode = iota
	modeSearch
	modeBacktest
)

func (m turnMode) String() string {
	switch m {
	case modeSearch:
		return "search"
	case modeBacktest:
		return "backtest"
	default:
		return "chat"
	}
}

// route scores the last user message against the intent classifiers and picks
// the tool mode for the turn. Backtest wins over search when both clear their
// thresholds. Classification is best effort; a scoring failure falls back to
// plain chat rather than blocking the response.
func (o *Orchestrator) route(ctx context.Context, message string) (turnMode, *tools.Registry) {
	ctx, span := tracer.Start(ctx, "route turn")
	defer span.End()

	backtestScore := o.score(ctx, o.backtestClassifier, message)
	searchScore := o.score(ctx, o.searchClassifier, message)
	span.SetAttributes(
		attribute.Float64("routing.backtest_score", backtestScore),
		attribute.Float64("routing.search_score", searchScore),
	)

	mode := modeChat
	registry := (*tools.Registry)(nil)
	switch {
	case backtestScore > o.backtestThreshold && !o.backtestTools.Empty():
		mode, registry = modeBacktest, o.backtestTools
	case searchScore > o.searchThreshold && !o.searchTools.Empty():
		mode, registry = modeSearch, o.searchTools
	}

	span.SetAttributes(attribute.String("routing.mode", mode.String()))
	return mode, registry
}

func (o *Orchestrator) score(ctx context.Context, classifier Classifier, message string) float64 {
	if classifier == nil {
		return 0
	}

	score, err := classifier.Score(ctx, message)
	if err != nil {
		logger.WarnContext(ctx, "intent classification failed, falling back to plain chat", "error", err)
		return 0
	}
	return score
}
