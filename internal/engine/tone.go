package engine

import (
	"context"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/example/go-orpheus-tts/internal/audio"
)

// Tone is a deterministic built-in backend: every word becomes a short sine
// burst followed by a gap, one chunk per word. It needs no model and is
// always ready, which makes it the development and test backend.
type Tone struct {
	Rate       int
	WordLength time.Duration
	Gap        time.Duration
	// ChunkDelay simulates inference time before each chunk.
	ChunkDelay time.Duration
}

func NewTone(sampleRate int) *Tone {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Tone{
		Rate:       sampleRate,
		WordLength: 120 * time.Millisecond,
		Gap:        30 * time.Millisecond,
	}
}

func (t *Tone) SampleRate() int { return t.Rate }

func (t *Tone) Ready(context.Context) error { return nil }

func (t *Tone) Stream(ctx context.Context, req Request) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, word := range strings.Fields(req.Text) {
			if t.ChunkDelay > 0 {
				timer := time.NewTimer(t.ChunkDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					yield(nil, ctx.Err())
					return
				case <-timer.C:
				}
			} else if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			if !yield(t.burst(word, req.Params.Temperature), nil) {
				return
			}
		}
	}
}

func (t *Tone) burst(word string, temperature float64) []byte {
	var h uint32
	for _, r := range word {
		h = h*31 + uint32(r)
	}
	freq := 180 + float64(h%400)
	amp := 0.3
	if temperature > 0 {
		amp = math.Min(0.9, 0.2+0.2*temperature)
	}

	n := int(t.WordLength * time.Duration(t.Rate) / time.Second)
	samples := make([]float32, n)
	for i := range samples {
		// Short linear ramps avoid clicks at burst edges.
		env := math.Min(1, math.Min(float64(i), float64(n-i))/64)
		samples[i] = float32(amp * env * math.Sin(2*math.Pi*freq*float64(i)/float64(t.Rate)))
	}

	return append(audio.PCM16(samples), audio.Silence(t.Gap, t.Rate)...)
}
