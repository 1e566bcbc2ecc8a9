// Package bench measures streaming latency against a running server: time
// to first audio, total request time and realtime factor.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-orpheus-tts/internal/audio"
	"github.com/example/go-orpheus-tts/internal/client"
)

// Speaker is the part of client.Client a benchmark drives.
type Speaker interface {
	Speak(ctx context.Context, text, requestID string, w io.Writer) (client.Result, error)
}

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single request.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run on the connection
	FirstAudio    time.Duration
	Duration      time.Duration
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds min, max and mean of one measured quantity.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		mn = min(mn, d)
		mx = max(mx, d)
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summary aggregates a set of runs.
type Summary struct {
	FirstAudio Stats
	Duration   Stats
	MeanRTF    float64
}

func Summarize(runs []RunResult) Summary {
	if len(runs) == 0 {
		return Summary{}
	}
	first := make([]time.Duration, len(runs))
	total := make([]time.Duration, len(runs))
	var rtf float64
	for i, r := range runs {
		first[i] = r.FirstAudio
		total[i] = r.Duration
		rtf += r.RTF
	}
	return Summary{
		FirstAudio: ComputeStats(first),
		Duration:   ComputeStats(total),
		MeanRTF:    rtf / float64(len(runs)),
	}
}

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// firstWrite counts bytes and remembers when the first one arrived.
type firstWrite struct {
	start time.Time
	first time.Duration
	n     int
}

func (f *firstWrite) Write(p []byte) (int, error) {
	if f.n == 0 && len(p) > 0 {
		f.first = time.Since(f.start)
	}
	f.n += len(p)
	return len(p), nil
}

// Run sends text runs times over one session. A cancelled or failed
// request stops the benchmark.
func Run(ctx context.Context, sp Speaker, text string, runs, sampleRate int) ([]RunResult, error) {
	results := make([]RunResult, 0, runs)

	for i := range runs {
		w := &firstWrite{start: time.Now()}
		res, err := sp.Speak(ctx, text, fmt.Sprintf("bench-%d", i), w)
		elapsed := time.Since(w.start)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		if res.Cancelled {
			return results, fmt.Errorf("run %d: request cancelled", i+1)
		}

		audioDur := audio.Duration(w.n, sampleRate)
		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0,
			FirstAudio:    w.first,
			Duration:      elapsed,
			AudioDuration: audioDur,
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, sum Summary, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %12s  %8s\n", "Run", "Cold", "TTFA(ms)", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 60))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %10.1f  %12.1f  %8.3f\n",
			r.Index+1, cold, ms(r.FirstAudio), ms(r.Duration), ms(r.AudioDuration), r.RTF)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 60))
	fmt.Fprintf(sb, "%-12s  %10.1f  %10.1f  (min)\n", "", ms(sum.FirstAudio.Min), ms(sum.Duration.Min))
	fmt.Fprintf(sb, "%-12s  %10.1f  %10.1f  %12s  %8.3f  (mean)\n", "", ms(sum.FirstAudio.Mean), ms(sum.Duration.Mean), "", sum.MeanRTF)
	fmt.Fprintf(sb, "%-12s  %10.1f  %10.1f  (max)\n", "", ms(sum.FirstAudio.Max), ms(sum.Duration.Max))

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs    []jsonRun `json:"runs"`
	TTFA    jsonStats `json:"first_audio"`
	Total   jsonStats `json:"duration"`
	MeanRTF float64   `json:"mean_rtf"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	FirstAudioMS float64 `json:"first_audio_ms"`
	DurationMS   float64 `json:"duration_ms"`
	AudioMS      float64 `json:"audio_ms"`
	RTF          float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

func toJSONStats(s Stats) jsonStats {
	return jsonStats{MinMS: ms(s.Min), MeanMS: ms(s.Mean), MaxMS: ms(s.Max)}
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, sum Summary, w io.Writer) error {
	jr := jsonReport{
		Runs:    make([]jsonRun, len(runs)),
		TTFA:    toJSONStats(sum.FirstAudio),
		Total:   toJSONStats(sum.Duration),
		MeanRTF: sum.MeanRTF,
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			FirstAudioMS: ms(r.FirstAudio),
			DurationMS:   ms(r.Duration),
			AudioMS:      ms(r.AudioDuration),
			RTF:          r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
