package synth

import (
	"context"
	"math"
)

// mockPipeline renders each paragraph as a short sine tone. It stands in for
// a real model in development and tests.
type mockPipeline struct{}

func NewMockPipeline() Pipeline {
	return &mockPipeline{}
}

func (m *mockPipeline) Run(ctx context.Context, text, voice string) (<-chan Segment, <-chan error) {
	segments := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segments)
		defer close(errs)
		for i, paragraph := range splitParagraphs(text) {
			samples := toneForParagraph(i, len(paragraph))
			select {
			case segments <- Segment{Index: i, Samples: samples}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return segments, errs
}

// toneForParagraph scales tone duration with paragraph length so the page
// feels roughly like real speech timing.
func toneForParagraph(index, length int) []float32 {
	seconds := 0.25 + 0.02*float64(length)
	if seconds > 2 {
		seconds = 2
	}
	freq := 440.0 + 40.0*float64(index%8)
	samples := make([]float32, int(seconds*SampleRate))
	for j := range samples {
		samples[j] = 0.3 * float32(math.Sin(2*math.Pi*freq*float64(j)/SampleRate))
	}
	return samples
}
