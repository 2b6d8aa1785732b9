package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/ismailbuhary/SpeechSynthesis/internal/synth"
)

type stubSynthesizer struct {
	data []byte
	err  error
}

func (s stubSynthesizer) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	return s.data, s.err
}

type recordingSynthesizer struct {
	text  string
	voice string
}

func (r *recordingSynthesizer) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	r.text = text
	r.voice = voice
	return []byte("RIFF"), nil
}

func newTestMux(t *testing.T, s Synthesizer) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if s == nil {
		s = synth.NewAdapter(synth.NewMockPipeline(), logger)
	}
	mux := http.NewServeMux()
	NewHandler(s, logger).Register(mux)
	return mux
}

func postForm(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSynthesizeFromForm(t *testing.T) {
	mux := newTestMux(t, nil)
	rec := postForm(mux, "text=Hello+world")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="speech.wav"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty audio body")
	}

	dec := wav.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.ReadInfo()
	if dec.Err() != nil {
		t.Fatalf("response is not a valid wav file: %v", dec.Err())
	}
	if dec.SampleRate != synth.SampleRate {
		t.Fatalf("expected %d Hz, got %d", synth.SampleRate, dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Fatalf("expected mono output, got %d channels", dec.NumChans)
	}
	duration, err := dec.Duration()
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if duration <= 0 {
		t.Fatal("expected audio duration > 0")
	}
}

func TestSynthesizeFromJSON(t *testing.T) {
	mux := newTestMux(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(`{"text": "Testing one two three"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", ct)
	}
}

func TestSynthesizeRejectsMissingText(t *testing.T) {
	mux := newTestMux(t, nil)
	want := `{"error": "No text provided"}`

	cases := []struct {
		name        string
		body        string
		contentType string
	}{
		{"empty form field", "text=", "application/x-www-form-urlencoded"},
		{"whitespace form field", "text=+++", "application/x-www-form-urlencoded"},
		{"no body", "", "application/x-www-form-urlencoded"},
		{"empty json text", `{"text": "  "}`, "application/json"},
		{"json without text", `{"voice": "am_echo"}`, "application/json"},
		{"malformed json", `{"text": `, "application/json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if rec.Body.String() != want {
				t.Fatalf("expected body %q, got %q", want, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected application/json, got %q", ct)
			}
		})
	}
}

func TestFormFieldWinsOverQueryAndDefaultsVoice(t *testing.T) {
	rec := &recordingSynthesizer{}
	mux := newTestMux(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/tts?text=from-query", strings.NewReader("text=from-form"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if rec.text != "from-form" {
		t.Fatalf("expected form body text, got %q", rec.text)
	}
	if rec.voice != synth.DefaultVoice {
		t.Fatalf("expected voice %q, got %q", synth.DefaultVoice, rec.voice)
	}
}

func TestSynthesizeReportsPipelineFailure(t *testing.T) {
	mux := newTestMux(t, stubSynthesizer{err: errors.New("model exploded")})
	rec := postForm(mux, "text=Hello")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(payload.Error, "model exploded") {
		t.Fatalf("expected failure message in error field, got %q", payload.Error)
	}
}

func TestIndexPage(t *testing.T) {
	mux := newTestMux(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected html content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<form") {
		t.Fatal("expected page to contain a form element")
	}
	if !strings.Contains(rec.Body.String(), `name="text"`) {
		t.Fatal("expected page to contain a text input")
	}
}

func TestMethodMismatch(t *testing.T) {
	mux := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/tts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /tts, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /, got %d", rec.Code)
	}
}
