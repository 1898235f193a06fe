// Package events defines the typed turn-stream event contract shared by the
// producer and the consumer.
//
// Every event that can travel over a turn stream has its own struct with a
// stable Kind. The set is closed: the wire codec and the consumer switch over
// it exhaustively, and an unknown kind is a decode error rather than a silent
// fall-through.
//
// Event kinds:
//
//   - TextDelta (response.text_delta): incremental assistant text fragment.
//     Concatenating all text deltas (plus any search result text) in arrival
//     order reconstructs the final assistant message.
//   - AudioSegment (response.audio_segment): synthesized speech for one
//     sentence-level unit of preceding text. Emitted asynchronously relative
//     to the deltas that produced it, but ordered among audio segments.
//   - ToolInvoked (tool.invoked): a tool call was detected mid-stream. Purely
//     informational, used for pending-state display.
//   - GraphData (tool.graph_data): structured chart payload from a tool.
//   - Sources (tool.sources): citation list from a search tool.
//   - SearchResult (tool.search_result): combined text plus citations from a
//     search tool.
//   - Done (stream.done): terminal marker, exactly one per stream, always
//     last.
//   - Error (stream.error): failure surfaced to the user. An Error followed
//     by Done is a gracefully closed stream.
package events
