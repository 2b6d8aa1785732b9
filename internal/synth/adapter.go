package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ismailbuhary/SpeechSynthesis/internal/audio"
)

// Adapter runs a pipeline to completion and packages the yielded segments as
// one WAV file. It returns either a complete valid file or an error, never
// partial audio.
type Adapter struct {
	pipeline Pipeline
	log      *slog.Logger
}

func NewAdapter(pipeline Pipeline, log *slog.Logger) *Adapter {
	return &Adapter{
		pipeline: pipeline,
		log:      log.With(slog.String("component", "synth-adapter")),
	}
}

// Synthesize renders text with the given voice (DefaultVoice when empty) and
// returns the concatenated waveform as WAV bytes. A pipeline that yields no
// samples fails with ErrNoAudio.
func (a *Adapter) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if voice == "" {
		voice = DefaultVoice
	}

	start := time.Now()
	segments, errs := a.pipeline.Run(ctx, text, voice)
	var samples []float32
	var yielded int
	for segments != nil || errs != nil {
		select {
		case segment, ok := <-segments:
			if !ok {
				segments = nil
				continue
			}
			samples = append(samples, segment.Samples...)
			yielded++
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("synthesis pipeline: %w", err)
			}
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	data, err := audio.EncodeFloat32(samples, SampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	a.log.Debug("synthesis complete",
		slog.Int("segments", yielded),
		slog.Int("samples", len(samples)),
		slog.Duration("elapsed", time.Since(start)))
	return data, nil
}

// Warmup renders a short utterance so the model is resident before the
// service accepts traffic.
func (a *Adapter) Warmup(ctx context.Context) error {
	start := time.Now()
	if _, err := a.Synthesize(ctx, "Warmup.", DefaultVoice); err != nil {
		return fmt.Errorf("warmup synthesis: %w", err)
	}
	a.log.Info("synthesis warmup complete", slog.Duration("elapsed", time.Since(start)))
	return nil
}
