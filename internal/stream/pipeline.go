package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/go-orpheus-tts/internal/audio"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
	"github.com/example/go-orpheus-tts/internal/session"
)

// UnitState is the lifecycle of one unit inside a pipeline run.
type UnitState int

const (
	UnitPending UnitState = iota
	UnitProducing
	UnitDraining
	UnitCompleted
	UnitCancelled
)

func (s UnitState) String() string {
	switch s {
	case UnitPending:
		return "pending"
	case UnitProducing:
		return "producing"
	case UnitDraining:
		return "draining"
	case UnitCompleted:
		return "completed"
	case UnitCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unit_state(%d)", int(s))
	}
}

// UnitReport is handed to Pipeline.OnUnit once a unit reaches a final
// state.
type UnitReport struct {
	Unit     Unit
	State    UnitState
	Drain    DrainResult
	Prefetch PrefetchResult
	Elapsed  time.Duration
}

// Job is one logical request: its units plus the settings every unit is
// synthesized with.
type Job struct {
	RequestID    string
	Units        []string
	Voice        string
	Params       engine.Params
	Priority     engine.Priority
	TrimSilence  bool
	PrespeechPad time.Duration
}

// Result summarizes a pipeline run.
type Result struct {
	Completed int
	Cancelled bool
}

// Pipeline runs a Job unit by unit. While unit i drains, up to Lookahead
// following units are already being produced, each into its own queue.
// Units are drained strictly in order.
type Pipeline struct {
	Synth      engine.Synthesizer
	Sender     Sender
	QueueSize  int
	Lookahead  int
	SampleRate int
	Log        *slog.Logger
	OnUnit     func(UnitReport)
	// OnState, if set, sees every state transition of every unit.
	OnState func(Unit, UnitState)
}

type unitRun struct {
	unit   Unit
	queue  chan []byte
	done   chan struct{}
	result PrefetchResult
	start  time.Time
}

// Run streams every unit of job. Each completed unit that sent audio is
// followed by sentence_end, and the request by a single audio_end. When sig
// fires, the unit being drained writes a cancelled audio_end and the
// remaining units are skipped. The returned error is a wire failure or ctx
// cancellation; synthesis failures only end their unit.
func (p *Pipeline) Run(ctx context.Context, job Job, sig *session.Signal) (Result, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	runs := make([]*unitRun, len(job.Units))
	start := func(i int) {
		if i >= len(runs) || runs[i] != nil {
			return
		}
		r := &unitRun{
			unit:  Unit{Index: i, Text: job.Units[i], RequestID: job.RequestID},
			queue: make(chan []byte, p.queueSize()),
			done:  make(chan struct{}),
			start: time.Now(),
		}
		runs[i] = r
		p.transition(r.unit, UnitPending)

		prefetcher := Prefetcher{
			Synth:  p.Synth,
			Shaper: audio.NewLeadingShaper(job.TrimSilence, job.PrespeechPad, p.sampleRate()),
		}
		req := engine.Request{
			Text:      r.unit.Text,
			Voice:     job.Voice,
			Params:    job.Params,
			Priority:  job.Priority,
			RequestID: job.RequestID,
		}

		p.transition(r.unit, UnitProducing)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(r.done)
			r.result = prefetcher.Run(ctx, req, r.queue, sig)
		}()
	}

	drainer := Drainer{Sender: p.Sender}
	var res Result

	for i := range runs {
		if sig.Fired() {
			// Nothing of this unit reached the wire; the cancel ack is still owed.
			if err := drainer.cancelled(Unit{Index: i, RequestID: job.RequestID}); err != nil {
				return res, err
			}
			res.Cancelled = true
			p.report(log, UnitReport{Unit: Unit{Index: i, Text: job.Units[i], RequestID: job.RequestID}, State: UnitCancelled})
			return res, nil
		}

		for j := i; j <= i+p.lookahead(); j++ {
			start(j)
		}
		r := runs[i]

		p.transition(r.unit, UnitDraining)
		dr, err := drainer.Drain(ctx, r.unit, r.queue, sig)
		if err != nil {
			return res, err
		}

		if dr.Cancelled {
			res.Cancelled = true
			cancel()
			<-r.done
			p.report(log, UnitReport{Unit: r.unit, State: UnitCancelled, Drain: dr, Prefetch: r.result, Elapsed: time.Since(r.start)})
			return res, nil
		}

		<-r.done
		if r.result.Err != nil {
			log.Warn("synthesis failed, ending unit",
				slog.Int("unit_index", i),
				slog.String("request_id", job.RequestID),
				slog.String("error", r.result.Err.Error()),
			)
		}
		if dr.HeaderSent {
			if err := p.Sender.SendText(protocol.SentenceEnd(i, job.RequestID)); err != nil {
				return res, fmt.Errorf("send sentence_end: %w", err)
			}
		}
		res.Completed++
		p.report(log, UnitReport{Unit: r.unit, State: UnitCompleted, Drain: dr, Prefetch: r.result, Elapsed: time.Since(r.start)})
	}

	if err := p.Sender.SendText(protocol.AudioEnd(job.RequestID, false)); err != nil {
		return res, fmt.Errorf("send audio_end: %w", err)
	}
	return res, nil
}

func (p *Pipeline) transition(u Unit, s UnitState) {
	if p.OnState != nil {
		p.OnState(u, s)
	}
}

func (p *Pipeline) report(log *slog.Logger, rep UnitReport) {
	p.transition(rep.Unit, rep.State)
	log.Debug("unit finished",
		slog.Int("unit_index", rep.Unit.Index),
		slog.String("request_id", rep.Unit.RequestID),
		slog.String("state", rep.State.String()),
		slog.Int("chunks", rep.Drain.Chunks),
		slog.Int("bytes", rep.Drain.Bytes),
		slog.Duration("elapsed", rep.Elapsed),
	)
	if p.OnUnit != nil {
		p.OnUnit(rep)
	}
}

func (p *Pipeline) queueSize() int {
	if p.QueueSize <= 0 {
		return 1
	}
	return p.QueueSize
}

func (p *Pipeline) lookahead() int {
	if p.Lookahead < 0 {
		return 0
	}
	return p.Lookahead
}

func (p *Pipeline) sampleRate() int {
	if p.SampleRate <= 0 {
		return audio.DefaultSampleRate
	}
	return p.SampleRate
}
