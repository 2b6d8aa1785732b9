package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ismailbuhary/SpeechSynthesis/internal/config"
)

// New builds the pipeline selected by cfg.Mode. The context bounds the
// lifetime of any worker process the pipeline spawns.
func New(ctx context.Context, cfg config.SynthesisConfig, log *slog.Logger) (Pipeline, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockPipeline(), nil
	case "exec":
		return NewExecPipeline(ctx, cfg.Command, log)
	case "server":
		return NewServerPipeline(cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown synthesis mode %q", cfg.Mode)
	}
}
