package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunBench_ValidatesFlags(t *testing.T) {
	tests := []struct {
		name string
		opts benchOptions
		want string
	}{
		{"missing text", benchOptions{runs: 1, format: "table", priority: "chat"}, "--text"},
		{"zero runs", benchOptions{text: "Hi.", format: "table", priority: "chat"}, "--runs"},
		{"bad format", benchOptions{text: "Hi.", runs: 1, format: "xml", priority: "chat"}, "--format"},
		{"bad priority", benchOptions{text: "Hi.", runs: 1, format: "json", priority: "urgent"}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runBench(context.Background(), tt.opts, 24000, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("runBench error = %v; want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRunBench_JSONAgainstServer(t *testing.T) {
	var out bytes.Buffer
	opts := benchOptions{
		server:   newSayServer(t),
		voice:    "leo",
		priority: "warm",
		text:     "Benchmark sentence.",
		runs:     2,
		format:   "json",
	}
	if err := runBench(context.Background(), opts, 24000, &out); err != nil {
		t.Fatalf("runBench: %v", err)
	}

	var report struct {
		Runs []struct {
			Cold    bool    `json:"cold"`
			AudioMS float64 `json:"audio_ms"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if len(report.Runs) != 2 || !report.Runs[0].Cold || report.Runs[0].AudioMS <= 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunBench_RTFThresholdFails(t *testing.T) {
	opts := benchOptions{
		server:       newSayServer(t),
		priority:     "chat",
		text:         "Hi.",
		runs:         1,
		format:       "table",
		rtfThreshold: 1e-9,
	}
	if err := runBench(context.Background(), opts, 24000, &bytes.Buffer{}); err == nil {
		t.Fatal("tiny RTF threshold should fail")
	}
}
