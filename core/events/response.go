package events

const (
	// KindTextDelta identifies streamed assistant response text.
	KindTextDelta Kind = "response.text_delta"
	// KindAudioSegment identifies synthesized speech for one sentence unit.
	KindAudioSegment Kind = "response.audio_segment"
)

// TextDelta carries an incremental fragment of assistant text.
type TextDelta struct {
	Base
	Content string
}

// NewTextDelta creates a text delta event.
func NewTextDelta(content string) TextDelta {
	return TextDelta{Base: NewBase(KindTextDelta), Content: content}
}

// AudioSegment carries synthesized speech audio for one completed sentence.
type AudioSegment struct {
	Base
	Audio []byte
}

// NewAudioSegment creates an audio segment event.
func NewAudioSegment(audio []byte) AudioSegment {
	return AudioSegment{Base: NewBase(KindAudioSegment), Audio: audio}
}
