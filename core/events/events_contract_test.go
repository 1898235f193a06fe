package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "text delta", event: NewTextDelta("hi"), expected: KindTextDelta},
		{name: "audio segment", event: NewAudioSegment([]byte{1}), expected: KindAudioSegment},
		{name: "tool invoked", event: NewToolInvoked("search"), expected: KindToolInvoked},
		{name: "graph data", event: NewGraphData([]string{"a"}, nil, nil), expected: KindGraphData},
		{name: "sources", event: NewSources(nil), expected: KindSources},
		{name: "search result", event: NewSearchResult("text", nil), expected: KindSearchResult},
		{name: "done", event: NewDone(), expected: KindDone},
		{name: "error", event: NewError("boom"), expected: KindError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
		})
	}
}
