package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/server"
)

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WhenEngineReady(t *testing.T) {
	h := server.NewHandler(engine.NewTone(24000), testVoices(t), server.WithMaxConnections(3))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v; want ok", body["status"])
	}
	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
	if body["capacity"] != float64(3) {
		t.Errorf("capacity = %v; want 3", body["capacity"])
	}
}

func TestHealth_Returns503WhenEngineDown(t *testing.T) {
	h := server.NewHandler(downEngine{engine.NewTone(24000)}, testVoices(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "degraded" || body["engine"] != "unavailable" {
		t.Errorf("body = %v", body)
	}
}

// ---------------------------------------------------------------------------
// GET /voices
// ---------------------------------------------------------------------------

func TestVoices_ReturnsJSONArray(t *testing.T) {
	h := server.NewHandler(engine.NewTone(24000), testVoices(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got []engine.Voice
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got) != 2 || got[0].ID != "tara" || got[1].ID != "leo" {
		t.Errorf("voices = %+v", got)
	}
}

func TestVoices_NilListerReturnsEmptyArray(t *testing.T) {
	h := server.NewHandler(engine.NewTone(24000), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voices", nil))

	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q; want []", got)
	}
}

// ---------------------------------------------------------------------------
// GET /metrics
// ---------------------------------------------------------------------------

func TestMetrics_ServedOnlyWhenConfigured(t *testing.T) {
	h := server.NewHandler(engine.NewTone(24000), testVoices(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("without handler: status = %d; want 404", rec.Code)
	}

	called := false
	h = server.NewHandler(engine.NewTone(24000), testVoices(t),
		server.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})),
	)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !called || rec.Code != http.StatusOK {
		t.Errorf("with handler: called=%v status=%d", called, rec.Code)
	}
}

func TestWS_PlainHTTPRequestRejected(t *testing.T) {
	h := server.NewHandler(engine.NewTone(24000), testVoices(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400 for a non-upgrade request", rec.Code)
	}
}
