package synth

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Fixed synthesis parameters. The serving contract pins these at build time;
// they are deliberately not configuration.
const (
	SampleRate   = 24000
	Channels     = 1
	DefaultVoice = "am_echo"
	Speed        = 1.0
)

// splitPattern breaks input text into paragraphs, one pipeline yield each.
var splitPattern = regexp.MustCompile(`\n+`)

// ErrNoAudio reports a pipeline run that yielded no samples.
var ErrNoAudio = errors.New("no audio generated from synthesis pipeline")

// Segment is one chunk of audio yielded by a pipeline per text split point.
type Segment struct {
	Index   int
	Samples []float32
}

// Pipeline is the contract for speech model backends. The segment channel
// closes when synthesis completes; the error channel reports at most one
// failure. Implementations own the thread safety of the underlying model.
type Pipeline interface {
	Run(ctx context.Context, text, voice string) (<-chan Segment, <-chan error)
}

func splitParagraphs(text string) []string {
	var parts []string
	for _, part := range splitPattern.Split(text, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
