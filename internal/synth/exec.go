package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ismailbuhary/SpeechSynthesis/internal/audio"
	"github.com/mattn/go-shellwords"
)

// execPipeline drives a long-lived worker subprocess that holds the loaded
// model. The worker speaks one JSON object per line: requests on stdin,
// one response line per audio segment on stdout. PCM payloads are
// little-endian float32 frames.
type execPipeline struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    *slog.Logger
	mu     sync.Mutex
	seq    int
}

type workerRequest struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
}

type workerResponse struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
	Error     string `json:"error"`
}

// NewExecPipeline parses and starts the worker command. The worker loads its
// model during startup and stays resident for the process lifetime; ctx
// cancellation kills it.
func NewExecPipeline(ctx context.Context, command string, log *slog.Logger) (*execPipeline, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("synthesis command empty")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start synthesis worker: %w", err)
	}

	log.Info("synthesis worker started",
		slog.String("command", args[0]),
		slog.Int("pid", cmd.Process.Pid))

	return &execPipeline{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		log:    log.With(slog.String("component", "synth-exec")),
	}, nil
}

func (e *execPipeline) Run(ctx context.Context, text, voice string) (<-chan Segment, <-chan error) {
	segments := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segments)
		defer close(errs)

		e.mu.Lock()
		defer e.mu.Unlock()

		e.seq++
		id := strconv.Itoa(e.seq)
		payload, err := json.Marshal(workerRequest{
			ID:         id,
			Text:       text,
			Voice:      voice,
			Speed:      Speed,
			SampleRate: SampleRate,
		})
		if err != nil {
			errs <- err
			return
		}
		if _, err := e.stdin.Write(append(payload, '\n')); err != nil {
			errs <- fmt.Errorf("write synthesis request: %w", err)
			return
		}

		for {
			line, err := e.stdout.ReadBytes('\n')
			if err != nil {
				errs <- fmt.Errorf("read synthesis response: %w", err)
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var resp workerResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- fmt.Errorf("decode synthesis response: %w", err)
				return
			}
			// Lines from an abandoned request carry its old id.
			if resp.ID != "" && resp.ID != id {
				continue
			}
			if resp.Error != "" {
				errs <- errors.New(resp.Error)
				return
			}
			if resp.PCMBase64 != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
				if err != nil {
					errs <- fmt.Errorf("decode pcm payload: %w", err)
					return
				}
				samples, err := audio.Float32FromBytes(pcm)
				if err != nil {
					errs <- err
					return
				}
				select {
				case segments <- Segment{Index: resp.Index, Samples: samples}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if resp.Final {
				return
			}
		}
	}()
	return segments, errs
}

// Close stops the worker: stdin close signals EOF, with a kill fallback when
// the worker does not exit promptly.
func (e *execPipeline) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		e.log.Warn("synthesis worker did not exit, killing")
		_ = e.cmd.Process.Kill()
		<-done
	}
	return nil
}
