package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/example/go-orpheus-tts/internal/config"
	"github.com/example/go-orpheus-tts/internal/doctor"
	"github.com/example/go-orpheus-tts/internal/engine"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the engine backend, voices and language gate configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runDoctor(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runDoctor(ctx context.Context, cfg config.Config, w io.Writer) error {
	backend, err := config.NormalizeBackend(cfg.Engine.Backend)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "backend: %s\n", backend)

	dcfg := doctor.Config{
		Backend:       backend,
		LookPath:      exec.LookPath,
		CLIPath:       cfg.Engine.CLIPath,
		ReadyTimeout:  cfg.Engine.ReadyTimeout(),
		VoiceManifest: cfg.TTS.VoiceManifest,
		DefaultVoice:  cfg.TTS.DefaultVoice,
		AllowedLangs:  cfg.LangGate.Allowed,
	}

	var extra []string
	if eng, err := engine.New(cfg.Engine); err != nil {
		extra = append(extra, fmt.Sprintf("engine: %v", err))
	} else {
		dcfg.Prober = eng
	}
	if voices, err := engine.VoicesFromConfig(cfg.TTS); err != nil {
		extra = append(extra, fmt.Sprintf("voices: %v", err))
	} else {
		dcfg.Voices = voices
	}

	result := doctor.Run(ctx, dcfg, w)
	for _, msg := range extra {
		_, _ = fmt.Fprintf(w, "%s %s\n", doctor.FailMark, msg)
		result.AddFailure(msg)
	}

	if result.Failed() {
		return fmt.Errorf("doctor found %d problem(s)", len(result.Failures()))
	}
	return nil
}
