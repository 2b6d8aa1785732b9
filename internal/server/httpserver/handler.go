package httpserver

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ismailbuhary/SpeechSynthesis/internal/synth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

//go:embed index.html
var indexHTML []byte

// Synthesizer renders text into a complete WAV file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Handler serves the test page and the synthesis endpoint.
type Handler struct {
	synth    Synthesizer
	log      *slog.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	wavBytes metric.Int64Counter
}

func NewHandler(s Synthesizer, log *slog.Logger) *Handler {
	h := &Handler{
		synth: s,
		log:   log.With(slog.String("component", "http")),
	}
	if err := h.initMetrics(); err != nil {
		h.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return h
}

func (h *Handler) initMetrics() error {
	meter := otel.Meter("github.com/ismailbuhary/SpeechSynthesis/server")
	requests, err := meter.Int64Counter("speechd.tts.requests",
		metric.WithDescription("Synthesis requests by outcome"))
	if err != nil {
		return err
	}
	duration, err := meter.Float64Histogram("speechd.tts.duration",
		metric.WithDescription("Synthesis latency"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	wavBytes, err := meter.Int64Counter("speechd.tts.audio_bytes",
		metric.WithDescription("WAV bytes returned"))
	if err != nil {
		return err
	}
	h.requests = requests
	h.duration = duration
	h.wavBytes = wavBytes
	return nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /tts", h.handleSynthesize)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	text := extractText(r)
	if strings.TrimSpace(text) == "" {
		h.count(r.Context(), "invalid")
		writeJSONError(w, http.StatusBadRequest, "No text provided")
		return
	}

	start := time.Now()
	data, err := h.synth.Synthesize(r.Context(), text, synth.DefaultVoice)
	elapsed := time.Since(start)
	if h.duration != nil {
		h.duration.Record(r.Context(), elapsed.Seconds())
	}
	if err != nil {
		h.log.Error("synthesis failed",
			slog.String("error", err.Error()),
			slog.Int("text_len", len(text)),
			slog.Duration("elapsed", elapsed))
		h.count(r.Context(), "failed")
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.count(r.Context(), "ok")
	if h.wavBytes != nil {
		h.wavBytes.Add(r.Context(), int64(len(data)))
	}
	h.log.Info("synthesis served",
		slog.Int("text_len", len(text)),
		slog.Int("wav_bytes", len(data)),
		slog.Duration("elapsed", elapsed))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="speech.wav"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) count(ctx context.Context, outcome string) {
	if h.requests == nil {
		return
	}
	h.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// extractText reads the submitted text: form field first, JSON body only
// when no form field was sent.
func extractText(r *http.Request) string {
	if text := r.PostFormValue("text"); text != "" {
		return text
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			return payload.Text
		}
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	quoted, err := json.Marshal(message)
	if err != nil {
		quoted = []byte(`"synthesis failed"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error": %s}`, quoted)
}
