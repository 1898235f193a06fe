package events

import (
	"encoding/json"
	"fmt"
)

// Wire type tags, one per event kind. The transport is newline-delimited JSON
// records of the form {"type": ..., "content": ..., "tool": ...}.
const (
	wireTypeChunk         = "chunk"
	wireTypeAudio         = "audio"
	wireTypeToolCall      = "tool_call"
	wireTypeGraph         = "graph"
	wireTypeSources       = "sources"
	wireTypeSearchResults = "search_results"
	wireTypeDone          = "done"
	wireTypeError         = "error"
)

type record struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
}

type graphContent struct {
	Labels         []string `json:"labels"`
	Series         []Series `json:"series"`
	AuxiliaryImage []byte   `json:"auxiliaryImage,omitempty"`
}

type searchResultContent struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// MarshalRecord encodes a single event as one wire record, without the
// trailing newline. The switch is exhaustive over the event kinds; an event
// type outside the contract is an error, not a silent skip.
func MarshalRecord(event Event) ([]byte, error) {
	rec := record{}

	switch event := event.(type) {
	case TextDelta:
		rec.Type = wireTypeChunk
		if err := setContent(&rec, event.Content); err != nil {
			return nil, err
		}
	case AudioSegment:
		rec.Type = wireTypeAudio
		if err := setContent(&rec, event.Audio); err != nil {
			return nil, err
		}
	case ToolInvoked:
		rec.Type = wireTypeToolCall
		rec.Tool = event.Tool
	case GraphData:
		rec.Type = wireTypeGraph
		if err := setContent(&rec, graphContent{
			Labels:         event.Labels,
			Series:         event.Series,
			AuxiliaryImage: event.AuxiliaryImage,
		}); err != nil {
			return nil, err
		}
	case Sources:
		rec.Type = wireTypeSources
		if err := setContent(&rec, event.Items); err != nil {
			return nil, err
		}
	case SearchResult:
		rec.Type = wireTypeSearchResults
		if err := setContent(&rec, searchResultContent{
			Text:    event.Text,
			Sources: event.Sources,
		}); err != nil {
			return nil, err
		}
	case Done:
		rec.Type = wireTypeDone
	case Error:
		rec.Type = wireTypeError
		if err := setContent(&rec, event.Message); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("event kind %q is not part of the wire contract", event.Kind())
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wire record: %w", err)
	}
	return encoded, nil
}

func setContent(rec *record, content any) error {
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode %q record content: %w", rec.Type, err)
	}
	rec.Content = encoded
	return nil
}

// DecodeRecord decodes one wire record back into its typed event. Unknown
// type tags and malformed content payloads are decode errors; the caller
// decides whether to skip the record or abort.
func DecodeRecord(data []byte) (Event, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed wire record: %w", err)
	}

	switch rec.Type {
	case wireTypeChunk:
		var content string
		if err := decodeContent(rec, &content); err != nil {
			return nil, err
		}
		return NewTextDelta(content), nil
	case wireTypeAudio:
		var audio []byte
		if err := decodeContent(rec, &audio); err != nil {
			return nil, err
		}
		return NewAudioSegment(audio), nil
	case wireTypeToolCall:
		return NewToolInvoked(rec.Tool), nil
	case wireTypeGraph:
		var content graphContent
		if err := decodeContent(rec, &content); err != nil {
			return nil, err
		}
		return NewGraphData(content.Labels, content.Series, content.AuxiliaryImage), nil
	case wireTypeSources:
		var items []Source
		if err := decodeContent(rec, &items); err != nil {
			return nil, err
		}
		return NewSources(items), nil
	case wireTypeSearchResults:
		var content searchResultContent
		if err := decodeContent(rec, &content); err != nil {
			return nil, err
		}
		return NewSearchResult(content.Text, content.Sources), nil
	case wireTypeDone:
		return NewDone(), nil
	case wireTypeError:
		var message string
		if err := decodeContent(rec, &message); err != nil {
			return nil, err
		}
		return NewError(message), nil
	default:
		return nil, fmt.Errorf("unknown wire record type %q", rec.Type)
	}
}

func decodeContent(rec record, into any) error {
	if rec.Content == nil {
		return fmt.Errorf("%q record is missing content", rec.Type)
	}
	if err := json.Unmarshal(rec.Content, into); err != nil {
		return fmt.Errorf("malformed %q record content: %w", rec.Type, err)
	}
	return nil
}
