package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ismailbuhary/SpeechSynthesis/internal/bus"
	"github.com/ismailbuhary/SpeechSynthesis/internal/config"
	"github.com/ismailbuhary/SpeechSynthesis/internal/natsserver"
	"github.com/ismailbuhary/SpeechSynthesis/internal/server/httpserver"
	"github.com/ismailbuhary/SpeechSynthesis/internal/synth"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	// The model loads exactly once, before any listener accepts traffic.
	pipeline, err := synth.New(ctx, r.cfg.Synthesis, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build synthesis pipeline: %w", err)
	}
	adapter := synth.NewAdapter(pipeline, r.logger)
	if r.cfg.Synthesis.Warmup {
		if err := adapter.Warmup(ctx); err != nil {
			return fmt.Errorf("failed to warm up synthesis pipeline: %w", err)
		}
	}

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	var synthService *synth.Service
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		synthService = synth.NewService(ctx, busClient, adapter, r.logger)
		if err := synthService.Start(); err != nil {
			busClient.Close()
			embedded.Shutdown()
			return fmt.Errorf("failed to start synthesis service: %w", err)
		}
	}

	mux := http.NewServeMux()
	httpserver.NewHandler(adapter, r.logger).Register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("speechd started",
		slog.String("addr", addr),
		slog.String("synthesis_mode", r.cfg.Synthesis.Mode),
		slog.Bool("bus", r.cfg.Bus.Enabled))

	<-ctx.Done()
	r.logger.Info("speechd stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	if synthService != nil {
		synthService.Close()
	}
	if busClient != nil {
		busClient.Close()
	}
	embedded.Shutdown()
	if closer, ok := pipeline.(io.Closer); ok {
		_ = closer.Close()
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
