package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/tools"
	"github.com/fintalk-ai/fintalk-core/internal/retry"
)

type scriptStep struct {
	chunk llms.StreamChunk
	err   error
}

type scriptedStream struct {
	steps []scriptStep
}

func (s *scriptedStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, step := range s.steps {
			if !yield(step.chunk, step.err) {
				return
			}
		}
	}
}

type contentChunk string

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return string(c) }

type toolCallChunk llms.ToolCall

func (c toolCallChunk) FinishReason() *string  { return nil }
func (c toolCallChunk) ToolCall() llms.ToolCall { return llms.ToolCall(c) }

func textSteps(deltas ...string) []scriptStep {
	steps := make([]scriptStep, 0, len(deltas))
	for _, delta := range deltas {
		steps = append(steps, scriptStep{chunk: contentChunk(delta)})
	}
	return steps
}

type scriptedSource struct {
	steps []scriptStep

	mu           sync.Mutex
	instructions string
	history      []llms.Message
	tools        []llms.Tool
}

func (s *scriptedSource) PromptWithStream(instructions string, history []llms.Message, declared []llms.Tool) llms.Stream {
	s.mu.Lock()
	s.instructions = instructions
	s.history = history
	s.tools = declared
	s.mu.Unlock()
	return &scriptedStream{steps: s.steps}
}

type fakeSynthesizer struct {
	mu       sync.Mutex
	calls    []string
	failures int
	err      error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("synthesis unavailable")
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynthesizer) callTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixedClassifier struct {
	score float64
	err   error
}

func (c fixedClassifier) Score(context.Context, string) (float64, error) {
	return c.score, c.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	failAt events.Kind
}

func (r *eventRecorder) emit(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt != "" && event.Kind() == r.failAt {
		return fmt.Errorf("transport closed")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var builder strings.Builder
	for _, event := range r.events {
		switch event := event.(type) {
		case events.TextDelta:
			builder.WriteString(event.Content)
		case events.SearchResult:
			builder.WriteString(event.Text)
		}
	}
	return builder.String()
}

func (r *eventRecorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func immediateRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func userTurn(content string) []llms.Message {
	return []llms.Message{{Role: llms.RoleUser, Content: content}}
}

func TestRunTurnStreamsTextAndDone(t *testing.T) {
	source := &scriptedSource{steps: textSteps("Hello", " there", ".")}
	orchestrator := NewOrchestrator(source)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := recorder.text(); got != "Hello there." {
		t.Fatalf("expected concatenated text %q, got %q", "Hello there.", got)
	}
	kinds := recorder.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != events.KindDone {
		t.Fatalf("expected done as final event, got %v", kinds)
	}
	if recorder.count(events.KindDone) != 1 {
		t.Fatalf("expected exactly one done event, got %d", recorder.count(events.KindDone))
	}
}

func TestRunTurnRejectsEmptyMessages(t *testing.T) {
	orchestrator := NewOrchestrator(&scriptedSource{})
	recorder := &eventRecorder{}

	err := orchestrator.RunTurn(context.Background(), nil, recorder.emit)
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
	if len(recorder.kinds()) != 0 {
		t.Fatalf("expected no events before validation, got %v", recorder.kinds())
	}
}

func TestRunTurnRejectsTrailingAssistantMessage(t *testing.T) {
	orchestrator := NewOrchestrator(&scriptedSource{})
	recorder := &eventRecorder{}

	err := orchestrator.RunTurn(context.Background(), []llms.Message{
		{Role: llms.RoleUser, Content: "hi"},
		{Role: llms.RoleAssistant, Content: "hello"},
	}, recorder.emit)
	if !errors.Is(err, ErrLastNotUser) {
		t.Fatalf("expected ErrLastNotUser, got %v", err)
	}
}

func TestRunTurnFatalStreamErrorEmitsErrorThenDone(t *testing.T) {
	source := &scriptedSource{steps: append(
		textSteps("Partial"),
		scriptStep{err: fmt.Errorf("completion backend gone")},
	)}
	orchestrator := NewOrchestrator(source)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err == nil {
		t.Fatalf("expected error, got nil")
	}

	kinds := recorder.kinds()
	if len(kinds) < 2 {
		t.Fatalf("expected at least error and done, got %v", kinds)
	}
	if kinds[len(kinds)-2] != events.KindError || kinds[len(kinds)-1] != events.KindDone {
		t.Fatalf("expected error then done as final events, got %v", kinds)
	}
}

func TestRunTurnSynthesizesCompletedSentences(t *testing.T) {
	source := &scriptedSource{steps: textSteps("First sentence. Second ", "one!", " trailing bit")}
	synthesizer := &fakeSynthesizer{}
	orchestrator := NewOrchestrator(source,
		WithSynthesizer(synthesizer),
		WithRetryPolicy(immediateRetry()),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	calls := synthesizer.callTexts()
	expected := []string{"First sentence.", "Second one!", "trailing bit."}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d synthesis calls, got %v", len(expected), calls)
	}
	for i, call := range calls {
		if call != expected[i] {
			t.Fatalf("expected synthesis call %d to be %q, got %q", i, expected[i], call)
		}
	}

	if got := recorder.count(events.KindAudioSegment); got != 3 {
		t.Fatalf("expected 3 audio segments, got %d", got)
	}
	kinds := recorder.kinds()
	if kinds[len(kinds)-1] != events.KindDone {
		t.Fatalf("expected done last, got %v", kinds)
	}
}

func TestRunTurnForcesSegmentAtLengthThreshold(t *testing.T) {
	long := strings.Repeat("a", 30)
	source := &scriptedSource{steps: textSteps(long, long)}
	synthesizer := &fakeSynthesizer{}
	orchestrator := NewOrchestrator(source,
		WithSynthesizer(synthesizer),
		WithSegmentThreshold(40),
		WithRetryPolicy(immediateRetry()),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	calls := synthesizer.callTexts()
	if len(calls) != 1 {
		t.Fatalf("expected 1 forced synthesis call, got %v", calls)
	}
	if len(calls[0]) != 60 {
		t.Fatalf("expected the forced segment to carry all accumulated text, got %d characters", len(calls[0]))
	}
}

func TestRunTurnRetriesSynthesisWithBackoff(t *testing.T) {
	var delays []time.Duration
	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	source := &scriptedSource{steps: textSteps("One sentence.")}
	synthesizer := &fakeSynthesizer{failures: 2}
	orchestrator := NewOrchestrator(source,
		WithSynthesizer(synthesizer),
		WithRetryPolicy(policy),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := len(synthesizer.callTexts()); got != 3 {
		t.Fatalf("expected 3 synthesis attempts, got %d", got)
	}
	expectedDelays := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(expectedDelays) {
		t.Fatalf("expected delays %v, got %v", expectedDelays, delays)
	}
	for i, delay := range delays {
		if delay != expectedDelays[i] {
			t.Fatalf("expected delay %d to be %v, got %v", i, expectedDelays[i], delay)
		}
	}
	if got := recorder.count(events.KindAudioSegment); got != 1 {
		t.Fatalf("expected the segment to be emitted after retries, got %d audio events", got)
	}
}

func TestRunTurnDropsSegmentAfterExhaustedRetries(t *testing.T) {
	source := &scriptedSource{steps: textSteps("First fails. Second works.")}
	synthesizer := &fakeSynthesizer{failures: 3}
	orchestrator := NewOrchestrator(source,
		WithSynthesizer(synthesizer),
		WithRetryPolicy(immediateRetry()),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 3 failed attempts for the first sentence, 1 success for the second.
	if got := len(synthesizer.callTexts()); got != 4 {
		t.Fatalf("expected 4 synthesis calls, got %d", got)
	}
	if got := recorder.count(events.KindAudioSegment); got != 1 {
		t.Fatalf("expected 1 audio segment, got %d", got)
	}
	kinds := recorder.kinds()
	if kinds[len(kinds)-1] != events.KindDone {
		t.Fatalf("expected the turn to still reach done, got %v", kinds)
	}
}

func searchTool(t *testing.T, result *tools.Result, execErr error) tools.Tool {
	t.Helper()
	return tools.Tool{
		Name:        tools.NameSearch,
		Description: "Search the web",
		Execute: func(context.Context, string) (*tools.Result, error) {
			return result, execErr
		},
	}
}

func TestRunTurnSearchMode(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		{chunk: toolCallChunk{ID: "call-1", Index: 0, Name: tools.NameSearch, Arguments: `{"query":`}},
		{chunk: toolCallChunk{Index: 0, Arguments: `"tesla news"}`}},
	}}
	result := &tools.Result{
		Text:    "Tesla shipped a record quarter.",
		Sources: []events.Source{{Title: "Tesla Q2", URL: "https://example.com/q2"}},
	}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{score: 0.8}, searchTool(t, result, nil)),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("What's the latest news about Tesla"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	kinds := recorder.kinds()
	expected := []events.Kind{events.KindToolInvoked, events.KindSearchResult, events.KindSources, events.KindDone}
	if len(kinds) != len(expected) {
		t.Fatalf("expected kinds %v, got %v", expected, kinds)
	}
	for i, kind := range kinds {
		if kind != expected[i] {
			t.Fatalf("expected kinds %v, got %v", expected, kinds)
		}
	}
	if got := recorder.text(); got != result.Text {
		t.Fatalf("expected search text in transcript, got %q", got)
	}

	source.mu.Lock()
	declared := source.tools
	source.mu.Unlock()
	if len(declared) != 1 || declared[0].Name != tools.NameSearch {
		t.Fatalf("expected search tool declared to the model, got %v", declared)
	}
}

func TestRunTurnBacktestModeEmitsGraphBeforeDone(t *testing.T) {
	graph := events.NewGraphData(
		[]string{"2023-01-03", "2023-01-04"},
		[]events.Series{{Name: "Strategy Returns", Values: []float64{0, 0.01}}},
		nil,
	)
	backtestTool := tools.Tool{
		Name: tools.NameRunBacktest,
		Execute: func(context.Context, string) (*tools.Result, error) {
			return &tools.Result{Graph: &graph}, nil
		},
	}
	source := &scriptedSource{steps: []scriptStep{
		{chunk: toolCallChunk{ID: "call-1", Index: 0, Name: tools.NameRunBacktest, Arguments: `{"longTickers":["AAPL","GOOGL"]}`}},
	}}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{score: 0.95}, searchTool(t, nil, nil)),
		WithBacktest(fixedClassifier{score: 0.95}, backtestTool),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("Backtest AAPL and GOOGL"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	kinds := recorder.kinds()
	graphIndex, doneIndex := -1, -1
	for i, kind := range kinds {
		switch kind {
		case events.KindGraphData:
			graphIndex = i
		case events.KindDone:
			doneIndex = i
		}
	}
	if graphIndex == -1 || doneIndex == -1 || graphIndex > doneIndex {
		t.Fatalf("expected graph-data before done, got %v", kinds)
	}
	// Backtest wins over search when both clear their thresholds.
	source.mu.Lock()
	declared := source.tools
	source.mu.Unlock()
	if len(declared) != 1 || declared[0].Name != tools.NameRunBacktest {
		t.Fatalf("expected backtest tools declared, got %v", declared)
	}
}

func TestRunTurnClassifierFailureFallsBackToChat(t *testing.T) {
	source := &scriptedSource{steps: textSteps("Plain answer.")}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{err: fmt.Errorf("classifier down")}, searchTool(t, &tools.Result{Text: "unused"}, nil)),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hello"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	source.mu.Lock()
	declared := source.tools
	source.mu.Unlock()
	if len(declared) != 0 {
		t.Fatalf("expected no tools bound on classifier failure, got %v", declared)
	}
	if got := recorder.text(); got != "Plain answer." {
		t.Fatalf("expected plain chat answer, got %q", got)
	}
}

func TestRunTurnBelowThresholdsIsPlainChat(t *testing.T) {
	source := &scriptedSource{steps: textSteps("Chat.")}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{score: 0.65}, searchTool(t, &tools.Result{Text: "unused"}, nil)),
		WithBacktest(fixedClassifier{score: 0.85}, tools.Tool{Name: tools.NameRunBacktest}),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hello"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	source.mu.Lock()
	declared := source.tools
	source.mu.Unlock()
	if len(declared) != 0 {
		t.Fatalf("expected plain chat below both thresholds, got %v", declared)
	}
}

func TestRunTurnConfigurableThresholds(t *testing.T) {
	source := &scriptedSource{steps: textSteps("Chat.")}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{score: 0.5}, searchTool(t, &tools.Result{Text: "answer"}, nil)),
		WithThresholds(0.99, 0.4),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hello"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	source.mu.Lock()
	declared := source.tools
	source.mu.Unlock()
	if len(declared) != 1 || declared[0].Name != tools.NameSearch {
		t.Fatalf("expected lowered threshold to bind search, got %v", declared)
	}
}

func TestRunTurnToolFailureIsSwallowed(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		{chunk: toolCallChunk{ID: "call-1", Index: 0, Name: tools.NameSearch, Arguments: `{"query":"x"}`}},
		{chunk: contentChunk("Carrying on regardless.")},
	}}
	orchestrator := NewOrchestrator(source,
		WithSearch(fixedClassifier{score: 0.9}, searchTool(t, nil, fmt.Errorf("vendor exploded"))),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("search something"), recorder.emit); err != nil {
		t.Fatalf("expected tool failure to be swallowed, got %v", err)
	}

	if got := recorder.count(events.KindSearchResult); got != 0 {
		t.Fatalf("expected failed tool's result to be omitted, got %d search results", got)
	}
	kinds := recorder.kinds()
	if kinds[len(kinds)-1] != events.KindDone {
		t.Fatalf("expected done despite tool failure, got %v", kinds)
	}
	if got := recorder.text(); got != "Carrying on regardless." {
		t.Fatalf("expected streamed text preserved, got %q", got)
	}
}

func TestRunTurnToolInvokedEmittedOncePerCall(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		{chunk: toolCallChunk{ID: "call-1", Index: 0, Name: tools.NameSearch, Arguments: `{"que`}},
		{chunk: toolCallChunk{Index: 0, Arguments: `ry":"x"}`}},
		{chunk: toolCallChunk{Index: 0, Arguments: ``}},
	}}
	calls := 0
	tool := tools.Tool{
		Name: tools.NameSearch,
		Execute: func(_ context.Context, argumentsJSON string) (*tools.Result, error) {
			calls++
			if argumentsJSON != `{"query":"x"}` {
				t.Fatalf("expected reassembled arguments, got %q", argumentsJSON)
			}
			return &tools.Result{Text: "found it"}, nil
		},
	}
	orchestrator := NewOrchestrator(source, WithSearch(fixedClassifier{score: 0.9}, tool))
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("search"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected exactly one tool invocation, got %d", calls)
	}
	if got := recorder.count(events.KindToolInvoked); got != 1 {
		t.Fatalf("expected exactly one tool-invoked event, got %d", got)
	}
}

func TestRunTurnNothingAfterDone(t *testing.T) {
	source := &scriptedSource{steps: textSteps("Sentence one. Sentence two. Sentence three.")}
	synthesizer := &fakeSynthesizer{}
	orchestrator := NewOrchestrator(source,
		WithSynthesizer(synthesizer),
		WithRetryPolicy(immediateRetry()),
	)
	recorder := &eventRecorder{}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	kinds := recorder.kinds()
	for i, kind := range kinds {
		if kind == events.KindDone && i != len(kinds)-1 {
			t.Fatalf("observed events after done: %v", kinds)
		}
	}
	if got := recorder.count(events.KindAudioSegment); got != 3 {
		t.Fatalf("expected all audio before done, got %d segments", got)
	}
}

func TestRunTurnTransportFailureStopsEmission(t *testing.T) {
	source := &scriptedSource{steps: textSteps("One.", " Two.")}
	orchestrator := NewOrchestrator(source)
	recorder := &eventRecorder{failAt: events.KindTextDelta}

	if err := orchestrator.RunTurn(context.Background(), userTurn("hi"), recorder.emit); err == nil {
		t.Fatalf("expected error when transport fails, got nil")
	}

	if got := recorder.count(events.KindDone); got != 0 {
		t.Fatalf("expected no done on a failed transport, got %d", got)
	}
}
