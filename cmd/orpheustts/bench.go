package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-orpheus-tts/internal/bench"
	"github.com/example/go-orpheus-tts/internal/client"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

type benchOptions struct {
	server       string
	token        string
	voice        string
	priority     string
	text         string
	runs         int
	format       string
	rtfThreshold float64
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark time to first audio and realtime factor against a server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if opts.server == "" {
				opts.server = localAddr(cfg.Server.ListenAddr)
			}
			if opts.token == "" && len(cfg.Server.AuthTokens) > 0 {
				opts.token = cfg.Server.AuthTokens[0]
			}
			return runBench(cmd.Context(), opts, cfg.Engine.SampleRate, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "Server address or URL (defaults to the listen address)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token (defaults to the first configured token)")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "Voice to request")
	cmd.Flags().StringVar(&opts.priority, "priority", "chat", "Connection priority: tool|chat|warm")
	cmd.Flags().StringVar(&opts.text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().IntVar(&opts.runs, "runs", 5, "Number of requests")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&opts.rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}

func runBench(ctx context.Context, opts benchOptions, sampleRate int, stdout io.Writer) error {
	if strings.TrimSpace(opts.text) == "" {
		return fmt.Errorf("--text is required for bench")
	}
	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1")
	}
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("--format must be 'table' or 'json'")
	}
	priority, err := engine.ParsePriority(opts.priority)
	if err != nil {
		return err
	}

	c, err := client.Dial(ctx, opts.server, client.Options{Token: opts.token, Priority: priority})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if opts.voice != "" {
		if err := c.Configure(opts.voice, protocol.Params{}); err != nil {
			return fmt.Errorf("send meta: %w", err)
		}
	}

	runs, err := bench.Run(ctx, c, opts.text, opts.runs, sampleRate)
	if err != nil {
		return err
	}
	sum := bench.Summarize(runs)

	switch opts.format {
	case "json":
		if err := bench.FormatJSON(runs, sum, stdout); err != nil {
			return err
		}
	default:
		bench.FormatTable(runs, sum, stdout)
	}

	return bench.CheckRTFThreshold(sum.MeanRTF, opts.rtfThreshold)
}
