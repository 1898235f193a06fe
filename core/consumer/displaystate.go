package consumer

import (
	"strings"
	"sync"
	"time"

	"github.com/fintalk-ai/fintalk-core/core/events"
)

// displayState is the reconstructed view of one conversation turn: the
// growing assistant message, the current citation list and chart, any surfaced
// errors, and the transient tool indicator.
type displayState struct {
	mu sync.Mutex

	text    strings.Builder
	sources []events.Source
	graph   *events.GraphData
	errors  []string
	done    bool

	toolIndicator  string
	indicatorGen   int
	indicatorTimer *time.Timer
}

// Snapshot is a copy of the display state safe to read while events keep
// arriving.
type Snapshot struct {
	Text          string
	Sources       []events.Source
	Graph         *events.GraphData
	Errors        []string
	ToolIndicator string
	Done          bool
}

func newDisplayState() *displayState {
	return &displayState{}
}

// BeginTurn resets the per-turn parts of the display. The last graph and
// sources stay visible until a new turn replaces them.
func (s *displayState) BeginTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text.Reset()
	s.errors = nil
	s.done = false
	s.clearIndicatorLocked()
}

func (s *displayState) AppendText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text.WriteString(text)
}

func (s *displayState) ReplaceSources(sources []events.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources = append([]events.Source(nil), sources...)
	s.clearIndicatorLocked()
}

func (s *displayState) ReplaceGraph(graph events.GraphData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph = &graph
	s.clearIndicatorLocked()
}

func (s *displayState) AppendError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, message)
}

// ShowToolIndicator marks a tool as running and schedules an automatic clear,
// so a stalled tool cannot wedge the indicator permanently. Any result event
// or done clears it earlier.
func (s *displayState) ShowToolIndicator(tool string, expiry time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.toolIndicator = tool
	s.indicatorGen++
	generation := s.indicatorGen

	if s.indicatorTimer != nil {
		s.indicatorTimer.Stop()
	}
	s.indicatorTimer = time.AfterFunc(expiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.indicatorGen == generation {
			s.toolIndicator = ""
		}
	})
}

func (s *displayState) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true
	s.clearIndicatorLocked()
}

func (s *displayState) clearIndicatorLocked() {
	s.toolIndicator = ""
	s.indicatorGen++
	if s.indicatorTimer != nil {
		s.indicatorTimer.Stop()
		s.indicatorTimer = nil
	}
}

func (s *displayState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Text:          s.text.String(),
		Sources:       append([]events.Source(nil), s.sources...),
		Graph:         s.graph,
		Errors:        append([]string(nil), s.errors...),
		ToolIndicator: s.toolIndicator,
		Done:          s.done,
	}
}
