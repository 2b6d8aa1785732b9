package protocol

// SynthesisRequest asks for one utterance to be rendered.
type SynthesisRequest struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SynthesisResult is the reply to a SynthesisRequest: one complete WAV file
// or an error message, never both.
type SynthesisResult struct {
	ID         string `json:"id"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	WAV        []byte `json:"wav,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	SubjectSynthesize = "tts.synthesize"
)
