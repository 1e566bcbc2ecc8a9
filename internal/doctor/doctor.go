// Package doctor provides preflight checks for orpheustts.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/langgate"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	Backend string
	// LookPath resolves the CLI executable; only used by the cli backend.
	LookPath func(file string) (string, error)
	CLIPath  string
	// Prober checks the engine. Nil skips the readiness check.
	Prober       engine.Prober
	ReadyTimeout time.Duration
	// VoiceManifest is stat'ed when non-empty.
	VoiceManifest string
	Voices        interface{ Has(id string) bool }
	DefaultVoice  string
	AllowedLangs  []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, check string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", check, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, check, err)
}

func pass(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "%s %s: %s\n", PassMark, check, detail)
}

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(ctx context.Context, cfg Config, w io.Writer) Result {
	var res Result

	// ---- engine binary ----------------------------------------------------
	if cfg.Backend == "cli" {
		exe := cfg.CLIPath
		if exe == "" {
			res.fail(w, "engine binary", fmt.Errorf("engine.cli_path is not set"))
		} else if path, err := cfg.lookPath(exe); err != nil {
			res.fail(w, "engine binary", err)
		} else {
			pass(w, "engine binary", path)
		}
	} else {
		pass(w, "engine binary", "skipped (backend "+cfg.Backend+")")
	}

	// ---- engine readiness -------------------------------------------------
	if cfg.Prober == nil {
		pass(w, "engine ready", "skipped")
	} else {
		probeCtx := ctx
		if cfg.ReadyTimeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, cfg.ReadyTimeout)
			defer cancel()
		}
		if err := cfg.Prober.Ready(probeCtx); err != nil {
			res.fail(w, "engine ready", err)
		} else {
			pass(w, "engine ready", "ok")
		}
	}

	// ---- voices -----------------------------------------------------------
	if cfg.VoiceManifest != "" {
		if _, err := os.Stat(cfg.VoiceManifest); err != nil {
			res.fail(w, "voice manifest", err)
		} else {
			pass(w, "voice manifest", cfg.VoiceManifest)
		}
	}
	if cfg.Voices != nil {
		if !cfg.Voices.Has(cfg.DefaultVoice) {
			res.fail(w, "default voice", fmt.Errorf("%q is not in the voice list", cfg.DefaultVoice))
		} else {
			pass(w, "default voice", cfg.DefaultVoice)
		}
	}

	// ---- language gate ----------------------------------------------------
	if len(cfg.AllowedLangs) == 0 {
		pass(w, "language gate", "disabled")
	} else if unknown := unknownLabels(cfg.AllowedLangs); len(unknown) > 0 {
		res.fail(w, "language gate", fmt.Errorf("unknown labels %s (known: %s)",
			strings.Join(unknown, ","), strings.Join(langgate.ScriptLabels(), ",")))
	} else {
		pass(w, "language gate", strings.Join(cfg.AllowedLangs, ","))
	}

	return res
}

func (c Config) lookPath(file string) (string, error) {
	if c.LookPath == nil {
		return file, nil
	}
	return c.LookPath(file)
}

func unknownLabels(labels []string) []string {
	var unknown []string
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && !slices.Contains(langgate.ScriptLabels(), l) {
			unknown = append(unknown, l)
		}
	}
	return unknown
}
