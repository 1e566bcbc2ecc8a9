package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/example/go-orpheus-tts/internal/audio"
)

// HTTP talks to a remote inference server. POST {URL}/synthesize takes a
// JSON Request and answers with a chunked body of raw PCM16; GET
// {URL}/health answers 200 when the server can take work.
type HTTP struct {
	URL        string
	Client     *http.Client
	Rate       int
	ChunkBytes int
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) endpoint(path string) string {
	return strings.TrimRight(h.URL, "/") + path
}

func (h *HTTP) SampleRate() int {
	if h.Rate <= 0 {
		return audio.DefaultSampleRate
	}
	return h.Rate
}

func (h *HTTP) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}

func (h *HTTP) Stream(ctx context.Context, r Request) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		body, err := json.Marshal(r)
		if err != nil {
			yield(nil, fmt.Errorf("encode request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/synthesize"), bytes.NewReader(body))
		if err != nil {
			yield(nil, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/octet-stream")

		resp, err := h.client().Do(req)
		if err != nil {
			yield(nil, fmt.Errorf("synthesize: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			yield(nil, fmt.Errorf("synthesize: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg))))
			return
		}

		size := h.ChunkBytes
		if size <= 0 {
			size = defaultCLIChunkBytes
		}
		stopped, err := readChunks(resp.Body, size, func(b []byte) bool { return yield(b, nil) })
		if err != nil && !stopped {
			yield(nil, fmt.Errorf("read synthesis stream: %w", err))
		}
	}
}
