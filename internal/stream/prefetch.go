// Package stream moves synthesized audio from the engine to the wire, one
// text unit at a time: a Prefetcher fills a bounded queue, a Drainer
// empties it onto the connection, and a Pipeline runs them in unit order.
package stream

import (
	"context"
	"fmt"

	"github.com/example/go-orpheus-tts/internal/audio"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/session"
)

// PrefetchResult summarizes one producer run.
type PrefetchResult struct {
	Chunks int
	Bytes  int
	// Aborted is true when the signal or ctx stopped production early.
	Aborted bool
	// Err is the synthesis failure, if any. It never reaches the wire.
	Err error
}

// Prefetcher pulls chunks for one unit from a Synthesizer and pushes them
// onto a bounded queue.
type Prefetcher struct {
	Synth engine.Synthesizer
	// Shaper rewrites leading audio; nil passes chunks through.
	Shaper *audio.LeadingShaper
}

// Run produces into queue until the sequence ends, fails, or sig fires.
// queue is closed exactly once when Run returns, on every path; a closed
// queue is the end-of-unit sentinel, distinct from a zero-length chunk.
func (p Prefetcher) Run(ctx context.Context, req engine.Request, queue chan<- []byte, sig *session.Signal) (res PrefetchResult) {
	defer close(queue)
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("synthesis panic: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sig.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for chunk, err := range p.Synth.Stream(ctx, req) {
		if sig.Fired() || ctx.Err() != nil {
			res.Aborted = true
			return res
		}
		if err != nil {
			res.Err = err
			return res
		}

		if p.Shaper != nil {
			chunk = p.Shaper.Apply(chunk)
			if len(chunk) == 0 {
				continue
			}
		}

		select {
		case queue <- chunk:
			res.Chunks++
			res.Bytes += len(chunk)
		case <-sig.Done():
			res.Aborted = true
			return res
		case <-ctx.Done():
			res.Aborted = true
			return res
		}
	}

	return res
}
