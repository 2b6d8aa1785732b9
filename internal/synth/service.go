package synth

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ismailbuhary/SpeechSynthesis/internal/bus"
	"github.com/ismailbuhary/SpeechSynthesis/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service exposes synthesis over the bus as request/reply: one request, one
// complete WAV reply. It shares the Adapter with the HTTP surface.
type Service struct {
	bus     *bus.Client
	adapter *Adapter
	sub     *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, adapter *Adapter, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:     busClient,
		adapter: adapter,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "synth-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthesize, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesis request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		result := protocol.SynthesisResult{
			ID:         req.ID,
			SampleRate: SampleRate,
			Channels:   Channels,
		}
		if strings.TrimSpace(req.Text) == "" {
			result.Error = "No text provided"
		} else if data, err := s.adapter.Synthesize(s.ctx, req.Text, req.Voice); err != nil {
			s.logger.Warn("synthesis failed", slog.String("request_id", req.ID), slogError(err))
			result.Error = err.Error()
		} else {
			result.WAV = data
		}

		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn("failed to marshal synthesis result", slogError(err))
			return
		}
		if err := msg.Respond(payload); err != nil {
			s.logger.Warn("failed to reply to synthesis request", slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
