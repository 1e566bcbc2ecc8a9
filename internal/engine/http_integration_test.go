//go:build integration

package engine_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/testutil"
)

// TestHTTP_LiveEngine streams one sentence from a real inference server.
func TestHTTP_LiveEngine(t *testing.T) {
	url := testutil.RequireEngineURL(t)

	eng := &engine.HTTP{URL: url, Client: &http.Client{}, Rate: 24000, ChunkBytes: 4800}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := eng.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	var total int
	req := engine.Request{Text: "Integration test sentence.", Voice: "tara", Params: engine.Params{Temperature: 0.6, TopP: 0.8, RepetitionPenalty: 1.1}}
	for chunk, err := range eng.Stream(ctx, req) {
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		total += len(chunk)
	}
	if total == 0 || total%2 != 0 {
		t.Errorf("streamed %d bytes; want a non-empty PCM16 stream", total)
	}
}
