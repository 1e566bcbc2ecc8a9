package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/example/go-orpheus-tts/internal/bench"
	"github.com/example/go-orpheus-tts/internal/client"
)

// stubSpeaker writes pcm after delay and returns res.
type stubSpeaker struct {
	delay time.Duration
	pcm   []byte
	res   client.Result
	err   error
	calls int
}

func (s *stubSpeaker) Speak(_ context.Context, _, requestID string, w io.Writer) (client.Result, error) {
	s.calls++
	time.Sleep(s.delay)
	if _, err := w.Write(s.pcm); err != nil {
		return client.Result{}, err
	}
	res := s.res
	res.RequestID = requestID
	return res, s.err
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestStats_MinMaxMean(t *testing.T) {
	s := bench.ComputeStats([]time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	})

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}
	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}
	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestStats_Empty(t *testing.T) {
	if s := bench.ComputeStats(nil); s != (bench.Stats{}) {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestSummarize_MeanRTF(t *testing.T) {
	sum := bench.Summarize([]bench.RunResult{
		{FirstAudio: 10 * time.Millisecond, Duration: 100 * time.Millisecond, RTF: 0.2},
		{FirstAudio: 30 * time.Millisecond, Duration: 300 * time.Millisecond, RTF: 0.4},
	})
	if sum.MeanRTF < 0.299 || sum.MeanRTF > 0.301 {
		t.Errorf("mean RTF = %.4f; want 0.3", sum.MeanRTF)
	}
	if sum.FirstAudio.Mean != 20*time.Millisecond {
		t.Errorf("first audio mean = %v", sum.FirstAudio.Mean)
	}
}

// ---------------------------------------------------------------------------
// RTF
// ---------------------------------------------------------------------------

func TestRTF_Calculation(t *testing.T) {
	// 1 second of audio synthesised in 500ms → RTF = 0.5
	rtf := bench.CalcRTF(500*time.Millisecond, time.Second)
	if rtf < 0.499 || rtf > 0.501 {
		t.Errorf("want RTF≈0.5, got %.4f", rtf)
	}
}

func TestRTF_ZeroAudioDuration(t *testing.T) {
	if rtf := bench.CalcRTF(500*time.Millisecond, 0); rtf != 0 {
		t.Errorf("want RTF=0 for zero audio duration, got %.4f", rtf)
	}
}

func TestRTFThreshold(t *testing.T) {
	tests := []struct {
		mean, threshold float64
		wantErr         bool
	}{
		{1.5, 1.0, true},
		{0.8, 1.0, false},
		{1.0, 1.0, false},
		{9999, 0, false},
	}
	for _, tt := range tests {
		err := bench.CheckRTFThreshold(tt.mean, tt.threshold)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckRTFThreshold(%v, %v) = %v; wantErr %v", tt.mean, tt.threshold, err, tt.wantErr)
		}
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_MeasuresEachRun(t *testing.T) {
	// 4800 bytes of PCM16 at 24 kHz is 100ms of audio.
	sp := &stubSpeaker{delay: 5 * time.Millisecond, pcm: make([]byte, 4800)}

	runs, err := bench.Run(context.Background(), sp, "Hello.", 3, 24000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runs) != 3 || sp.calls != 3 {
		t.Fatalf("runs = %d, calls = %d; want 3", len(runs), sp.calls)
	}
	if !runs[0].Cold || runs[1].Cold {
		t.Error("only the first run should be cold")
	}
	for _, r := range runs {
		if r.AudioDuration != 100*time.Millisecond {
			t.Errorf("run %d audio = %v; want 100ms", r.Index, r.AudioDuration)
		}
		if r.FirstAudio < 5*time.Millisecond || r.FirstAudio > r.Duration {
			t.Errorf("run %d first audio = %v, duration = %v", r.Index, r.FirstAudio, r.Duration)
		}
		if r.RTF <= 0 {
			t.Errorf("run %d RTF = %v", r.Index, r.RTF)
		}
	}
}

func TestRun_StopsOnError(t *testing.T) {
	sp := &stubSpeaker{err: errors.New("boom")}
	runs, err := bench.Run(context.Background(), sp, "Hello.", 3, 24000)
	if err == nil || len(runs) != 0 || sp.calls != 1 {
		t.Fatalf("runs = %d, calls = %d, err = %v", len(runs), sp.calls, err)
	}
}

func TestRun_StopsOnCancelled(t *testing.T) {
	sp := &stubSpeaker{res: client.Result{Cancelled: true}}
	if _, err := bench.Run(context.Background(), sp, "Hello.", 2, 24000); err == nil {
		t.Fatal("cancelled request should fail the benchmark")
	}
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func sampleRuns() []bench.RunResult {
	return []bench.RunResult{
		{Index: 0, Cold: true, FirstAudio: 90 * time.Millisecond, Duration: 800 * time.Millisecond, RTF: 0.8, AudioDuration: time.Second},
		{Index: 1, FirstAudio: 40 * time.Millisecond, Duration: 500 * time.Millisecond, RTF: 0.5, AudioDuration: time.Second},
	}
}

func TestFormatTable_ContainsHeaders(t *testing.T) {
	runs := sampleRuns()

	var buf strings.Builder
	bench.FormatTable(runs, bench.Summarize(runs), &buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"run", "cold", "ttfa", "rtf", "(mean)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	runs := sampleRuns()

	var buf bytes.Buffer
	if err := bench.FormatJSON(runs, bench.Summarize(runs), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		Runs       []map[string]any `json:"runs"`
		FirstAudio struct {
			MinMS float64 `json:"min_ms"`
		} `json:"first_audio"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}
	if len(out.Runs) != 2 || out.FirstAudio.MinMS != 40 {
		t.Errorf("report = %+v", out)
	}
}
