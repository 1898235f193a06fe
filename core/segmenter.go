package orchestration

import "strings"

const (
	sentenceTerminators = ".?!"

	// defaultSegmentThreshold caps how much unterminated text accumulates
	// before it is cut for synthesis anyway.
	defaultSegmentThreshold = 200
)

// sentenceSegmenter accumulates streamed text and cuts it into speakable
// sentences. The processed watermark only advances past text that has been
// handed out, so a partial trailing sentence is retried on the next append.
type sentenceSegmenter struct {
	text      strings.Builder
	processed int
	threshold int
}

func newSentenceSegmenter(threshold int) *sentenceSegmenter {
	if threshold <= 0 {
		threshold = defaultSegmentThreshold
	}
	return &sentenceSegmenter{threshold: threshold}
}

// Append adds a text delta and returns any newly completed sentences, in
// order. A sentence completes at terminal punctuation, or when the
// unprocessed suffix outgrows the threshold without any.
func (s *sentenceSegmenter) Append(chunk string) []string {
	s.text.WriteString(chunk)

	var segments []string
	full := s.text.String()
	for {
		suffix := full[s.processed:]
		if i := strings.IndexAny(suffix, sentenceTerminators); i >= 0 {
			s.processed += i + 1
			if segment := strings.TrimSpace(suffix[:i+1]); segment != "" {
				segments = append(segments, segment)
			}
			continue
		}

		if len(suffix) > s.threshold {
			s.processed += len(suffix)
			if segment := strings.TrimSpace(suffix); segment != "" {
				segments = append(segments, segment)
			}
		}
		return segments
	}
}

// Flush returns the trailing unterminated text as a final sentence, with a
// synthetic terminator appended so synthesis does not trail off. Returns ""
// when nothing speakable remains.
func (s *sentenceSegmenter) Flush() string {
	suffix := s.text.String()[s.processed:]
	s.processed = s.text.Len()

	segment := strings.TrimSpace(suffix)
	if segment == "" {
		return ""
	}
	if !strings.ContainsAny(segment[len(segment)-1:], sentenceTerminators) {
		segment += "."
	}
	return segment
}

// Text returns everything appended so far.
func (s *sentenceSegmenter) Text() string {
	return s.text.String()
}
