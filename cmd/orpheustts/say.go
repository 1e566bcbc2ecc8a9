package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-orpheus-tts/internal/audio"
	"github.com/example/go-orpheus-tts/internal/client"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

type sayOptions struct {
	server    string
	text      string
	out       string
	voice     string
	token     string
	priority  string
	requestID string
	raw       bool
}

func newSayCmd() *cobra.Command {
	var opts sayOptions

	cmd := &cobra.Command{
		Use:   "say",
		Short: "Stream text through a running server and save the audio",
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

			text, err := readSayText(opts.text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			// Ctrl-C cancels the request; the server still acknowledges it.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSay(ctx, opts, text, cfg.Engine.SampleRate, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "Server address or URL (defaults to the listen address)")
	cmd.Flags().StringVar(&opts.text, "text", "", "Text to speak (reads stdin when empty)")
	cmd.Flags().StringVar(&opts.out, "out", "out.wav", "Output path, or - for stdout")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "Voice to request")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token (defaults to the first configured token)")
	cmd.Flags().StringVar(&opts.priority, "priority", "chat", "Connection priority: tool|chat|warm")
	cmd.Flags().StringVar(&opts.requestID, "request-id", "", "Request identifier echoed in events")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Write raw PCM16 instead of WAV")

	return cmd
}

func runSay(ctx context.Context, opts sayOptions, text string, sampleRate int, stdout io.Writer) error {
	priority, err := engine.ParsePriority(opts.priority)
	if err != nil {
		return err
	}

	c, err := client.Dial(context.Background(), opts.server, client.Options{Token: opts.token, Priority: priority})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if opts.voice != "" {
		if err := c.Configure(opts.voice, protocol.Params{}); err != nil {
			return fmt.Errorf("send meta: %w", err)
		}
	}

	// Stdout gets audio as it arrives; files are written once the request ends.
	if opts.out == "-" {
		if !opts.raw {
			if _, err := audio.WriteWAVHeaderStreaming(stdout, sampleRate); err != nil {
				return fmt.Errorf("write wav header: %w", err)
			}
		}
		res, err := c.Speak(ctx, text, opts.requestID, stdout)
		if err != nil {
			return err
		}
		logSpeech(res)
		return nil
	}

	var pcm bytes.Buffer
	res, err := c.Speak(ctx, text, opts.requestID, &pcm)
	if err != nil {
		return err
	}
	logSpeech(res)

	data := pcm.Bytes()
	if !opts.raw {
		data, err = audio.EncodeWAV(data, sampleRate)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(opts.out, data, 0o644)
}

func logSpeech(res client.Result) {
	slog.Info("speech received",
		slog.String("request_id", res.RequestID),
		slog.Int("sentences", len(res.Sentences)),
		slog.Int("pcm_bytes", res.Bytes),
		slog.Bool("cancelled", res.Cancelled),
	)
}

func readSayText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}

// localAddr turns a listen address such as ":8080" into one a client can
// dial.
func localAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}
	return listen
}
