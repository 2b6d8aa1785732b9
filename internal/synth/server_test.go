package synth

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestServerPipelineRequestsEachParagraph(t *testing.T) {
	var mu sync.Mutex
	var requests []speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		// Two s16le frames: full scale negative, half scale positive.
		pcm := make([]byte, 4)
		binary.LittleEndian.PutUint16(pcm[0:], 0x8000)
		binary.LittleEndian.PutUint16(pcm[2:], 16384)
		w.Write(pcm)
	}))
	defer srv.Close()

	pipeline := NewServerPipeline(srv.URL + "/")
	segments, errs := pipeline.Run(context.Background(), "first\n\nsecond", DefaultVoice)

	var total int
	for segment := range segments {
		if len(segment.Samples) != 2 {
			t.Fatalf("expected 2 samples per segment, got %d", len(segment.Samples))
		}
		if segment.Samples[0] != -1.0 || segment.Samples[1] != 0.5 {
			t.Fatalf("unexpected samples: %v", segment.Samples)
		}
		total++
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 segments, got %d", total)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Input != "first" || requests[1].Input != "second" {
		t.Fatalf("unexpected inputs: %q, %q", requests[0].Input, requests[1].Input)
	}
	for _, req := range requests {
		if req.Model != "kokoro" || req.Voice != DefaultVoice || req.Speed != Speed || req.ResponseFormat != "pcm" {
			t.Fatalf("unexpected request fields: %+v", req)
		}
	}
}

func TestServerPipelineSurfacesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	pipeline := NewServerPipeline(srv.URL)
	segments, errs := pipeline.Run(context.Background(), "hello", DefaultVoice)
	for range segments {
		t.Fatal("expected no segments")
	}
	err := <-errs
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestServerPipelineRejectsMisalignedAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	pipeline := NewServerPipeline(srv.URL)
	segments, errs := pipeline.Run(context.Background(), "hello", DefaultVoice)
	for range segments {
		t.Fatal("expected no segments")
	}
	if err := <-errs; err == nil {
		t.Fatal("expected an error for odd-length pcm")
	}
}
