package engine

import (
	"fmt"
	"net/http"

	"github.com/example/go-orpheus-tts/internal/config"
)

// New builds the backend selected by cfg.Backend.
func New(cfg config.EngineConfig) (Engine, error) {
	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendCLI:
		return &CLI{
			Path:       cfg.CLIPath,
			Args:       cfg.CLIArgs,
			Rate:       cfg.SampleRate,
			ChunkBytes: cfg.ChunkBytes,
			WAVOutput:  cfg.CLIWAVOutput,
		}, nil
	case config.BackendHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("engine url is required for the %s backend", backend)
		}
		return &HTTP{
			URL:        cfg.URL,
			Client:     &http.Client{},
			Rate:       cfg.SampleRate,
			ChunkBytes: cfg.ChunkBytes,
		}, nil
	default:
		return NewTone(cfg.SampleRate), nil
	}
}

// VoicesFromConfig loads the manifest when one is configured and falls back
// to the plain voice list otherwise.
func VoicesFromConfig(cfg config.TTSConfig) (*Voices, error) {
	if cfg.VoiceManifest != "" {
		return LoadVoiceManifest(cfg.VoiceManifest)
	}
	return NewVoices(cfg.Voices...)
}
