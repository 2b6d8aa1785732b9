package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ismailbuhary/SpeechSynthesis/internal/audio"
)

// serverPipeline calls a Kokoro-FastAPI style sidecar over HTTP. The sidecar
// holds the model; one request is made per paragraph and the raw PCM replies
// become segments in paragraph order.
type serverPipeline struct {
	endpoint string
	client   *http.Client
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
}

func NewServerPipeline(endpoint string) Pipeline {
	return &serverPipeline{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{},
	}
}

func (s *serverPipeline) Run(ctx context.Context, text, voice string) (<-chan Segment, <-chan error) {
	segments := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segments)
		defer close(errs)
		for i, paragraph := range splitParagraphs(text) {
			samples, err := s.speak(ctx, paragraph, voice)
			if err != nil {
				errs <- err
				return
			}
			if len(samples) == 0 {
				continue
			}
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

func (s *serverPipeline) speak(ctx context.Context, text, voice string) ([]float32, error) {
	payload := speechRequest{
		Model:          "kokoro",
		Input:          text,
		Voice:          voice,
		Speed:          Speed,
		ResponseFormat: "pcm",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call speech server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("speech server returned status %s", resp.Status)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return audio.Float32FromPCM16(pcm)
}
