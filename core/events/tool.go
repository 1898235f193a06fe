package events

const (
	// KindToolInvoked identifies detection of a tool call mid-stream.
	KindToolInvoked Kind = "tool.invoked"
	// KindGraphData identifies a structured chart payload from a tool.
	KindGraphData Kind = "tool.graph_data"
	// KindSources identifies a citation list extracted from a search result.
	KindSources Kind = "tool.sources"
	// KindSearchResult identifies a combined text plus citation payload.
	KindSearchResult Kind = "tool.search_result"
)

// ToolInvoked marks the start of a tool call so the receiver can show a
// pending indicator. It carries no result data.
type ToolInvoked struct {
	Base
	Tool string
}

// NewToolInvoked creates a tool invoked event.
func NewToolInvoked(tool string) ToolInvoked {
	return ToolInvoked{Base: NewBase(KindToolInvoked), Tool: tool}
}

// Series is one named line of a chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// GraphData carries a chart produced by a tool: one label per x-axis point
// and one or more value series, optionally with a pre-rendered image.
type GraphData struct {
	Base
	Labels         []string
	Series         []Series
	AuxiliaryImage []byte
}

// NewGraphData creates a graph data event.
func NewGraphData(labels []string, series []Series, auxiliaryImage []byte) GraphData {
	return GraphData{Base: NewBase(KindGraphData), Labels: labels, Series: series, AuxiliaryImage: auxiliaryImage}
}

// Source is a single citation.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Sources carries the citation list for the current assistant message. It
// replaces, not appends to, any previously displayed list.
type Sources struct {
	Base
	Items []Source
}

// NewSources creates a sources event.
func NewSources(items []Source) Sources {
	return Sources{Base: NewBase(KindSources), Items: items}
}

// SearchResult carries search tool output as display text plus citations.
type SearchResult struct {
	Base
	Text    string
	Sources []Source
}

// NewSearchResult creates a search result event.
func NewSearchResult(text string, sources []Source) SearchResult {
	return SearchResult{Base: NewBase(KindSearchResult), Text: text, Sources: sources}
}
